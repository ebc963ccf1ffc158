package minting

import (
	"context"
	"sync"
	"time"

	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/infrastructure/stream"
	"github.com/rs/zerolog/log"
)

type HistoryReader interface {
	ListByPatient(ctx context.Context, patientID string) ([]domain.MedicalHistoryEntry, error)
}

type AppointmentReader interface {
	ListByParticipant(ctx context.Context, section domain.Section, userID string) ([]domain.Appointment, error)
}

type ReferralReader interface {
	ListByPatient(ctx context.Context, patientID string) ([]domain.Referral, error)
}

// Subscriber is the change-stream source. *stream.Hub satisfies it.
type Subscriber interface {
	Subscribe(path string, onChange func()) (unsubscribe func())
}

// Minter is implemented by *Factory.
type Minter interface {
	Mint(ctx context.Context, userID string, ev domain.Event) (*domain.Notification, error)
}

// Sources groups the document readers a watcher consults. Documents older
// than Horizon are not minted; zero mints the full history.
type Sources struct {
	History      HistoryReader
	Appointments AppointmentReader
	Referrals    ReferralReader
	Horizon      time.Duration
}

// Watcher follows one signed-in user's source documents and mints a
// notification for every new item it finds.
type Watcher struct {
	sources Sources
	sub     Subscriber
	minter  Minter
	userID  string
	section domain.Section

	mu     sync.Mutex
	cancel context.CancelFunc
	unsubs []func()
	wg     sync.WaitGroup
}

func NewWatcher(sources Sources, sub Subscriber, minter Minter, userID string, section domain.Section) *Watcher {
	return &Watcher{sources: sources, sub: sub, minter: minter, userID: userID, section: section}
}

// Start subscribes to the user's document paths and runs one catch-up pass
// per path in the background.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	type watch struct {
		path string
		sync func(context.Context)
	}
	watches := []watch{{stream.AppointmentsPath(w.section, w.userID), w.syncAppointments}}
	if w.section == domain.SectionPatient {
		watches = append(watches,
			watch{stream.MedicalHistoryPath(w.userID), w.syncHistory},
			watch{stream.ReferralsPath(w.userID), w.syncReferrals},
		)
	}

	for _, wt := range watches {
		run := wt.sync
		w.unsubs = append(w.unsubs, w.sub.Subscribe(wt.path, func() { run(ctx) }))
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			run(ctx)
		}()
	}
}

// Stop unsubscribes and waits for catch-up passes to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return
	}
	w.cancel()
	for _, u := range w.unsubs {
		u()
	}
	w.unsubs = nil
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) syncHistory(ctx context.Context) {
	entries, err := w.sources.History.ListByPatient(ctx, w.userID)
	if err != nil {
		w.readFailed(ctx, "medical history", err)
		return
	}
	w.mintAll(ctx, historyEvents(entries, w.cutoff()))
}

func (w *Watcher) syncAppointments(ctx context.Context) {
	appointments, err := w.sources.Appointments.ListByParticipant(ctx, w.section, w.userID)
	if err != nil {
		w.readFailed(ctx, "appointments", err)
		return
	}
	w.mintAll(ctx, appointmentEvents(appointments, w.section, w.cutoff()))
}

func (w *Watcher) syncReferrals(ctx context.Context) {
	referrals, err := w.sources.Referrals.ListByPatient(ctx, w.userID)
	if err != nil {
		w.readFailed(ctx, "referrals", err)
		return
	}
	w.mintAll(ctx, referralEvents(referrals, w.cutoff()))
}

func (w *Watcher) cutoff() time.Time {
	if w.sources.Horizon <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-w.sources.Horizon)
}

func (w *Watcher) mintAll(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.minter.Mint(ctx, w.userID, ev); err != nil {
			log.Warn().Err(err).Str("user_id", w.userID).Str("key", ev.Key()).Msg("could not mint notification")
		}
	}
}

func (w *Watcher) readFailed(ctx context.Context, what string, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Warn().Err(err).Str("user_id", w.userID).Msgf("could not read %s", what)
}
