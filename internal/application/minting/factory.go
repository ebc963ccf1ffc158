// Package minting turns first-observed domain events into notifications.
package minting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/care-notify/internal/application/dedup"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/infrastructure/stream"
	"github.com/care-notify/internal/pkg/id"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/care-notify/internal/pkg/validate"
	"github.com/rs/zerolog/log"
)

// NotificationWriter persists new notifications.
type NotificationWriter interface {
	Put(ctx context.Context, n *domain.Notification) error
}

// ChangePublisher signals that a path changed. *stream.Hub satisfies it.
type ChangePublisher interface {
	Publish(ctx context.Context, path string)
}

// PushSender fans a notification out to devices.
type PushSender interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

const resignalTimeout = 5 * time.Second

// Factory mints at most one notification per (user, event key).
type Factory struct {
	writer  NotificationWriter
	guard   dedup.Guard
	changes ChangePublisher
	push    PushSender
	metrics *metrics.Metrics
	now     func() time.Time
	settle  []time.Duration

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewFactory wires a factory. push and m may be nil.
func NewFactory(writer NotificationWriter, guard dedup.Guard, changes ChangePublisher, push PushSender, m *metrics.Metrics) *Factory {
	return &Factory{
		writer:   writer,
		guard:    guard,
		changes:  changes,
		push:     push,
		metrics:  m,
		now:      time.Now,
		settle:   []time.Duration{time.Second, 5 * time.Second},
		inflight: make(map[string]chan struct{}),
	}
}

// Mint returns the new notification, or nil when the event was invalid or
// already processed. An error means nothing was persisted.
func (f *Factory) Mint(ctx context.Context, userID string, ev domain.Event) (*domain.Notification, error) {
	if err := validate.Event(ev); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("skipping invalid domain event")
		f.skipped("invalid")
		return nil, nil
	}
	key := ev.Key()

	release, err := f.claim(ctx, userID+"/"+key)
	if err != nil {
		return nil, err
	}
	defer release()

	done, err := f.guard.IsProcessed(ctx, userID, key)
	if err != nil {
		// Prefer a duplicate over a lost notification.
		log.Warn().Err(err).Str("user_id", userID).Str("key", key).Msg("dedup check failed, minting anyway")
	}
	if done {
		f.skipped("duplicate")
		return nil, nil
	}

	n := build(userID, ev, f.now())
	if err := f.writer.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification %s: %w", key, err)
	}
	if err := f.guard.MarkProcessed(ctx, userID, key); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("key", key).Msg("notification minted but key not recorded")
	}
	if f.metrics != nil {
		f.metrics.NotificationsMinted.WithLabelValues(string(n.Type)).Inc()
	}
	log.Info().Str("user_id", userID).Str("key", key).Str("notification_id", n.NotificationID).Msg("notification minted")

	f.signal(ctx, stream.NotificationsPath(userID))
	if f.push != nil {
		if err := f.push.Publish(ctx, n); err != nil {
			log.Warn().Err(err).Str("notification_id", n.NotificationID).Msg("push fan-out failed")
		}
	}
	return n, nil
}

// signal announces path now and again after each settle delay. Feeds re-read
// through the owner index, which is eventually consistent and may not list a
// just-written item on the first read.
func (f *Factory) signal(ctx context.Context, path string) {
	f.changes.Publish(ctx, path)
	for _, d := range f.settle {
		time.AfterFunc(d, func() {
			ctx, cancel := context.WithTimeout(context.Background(), resignalTimeout)
			defer cancel()
			f.changes.Publish(ctx, path)
		})
	}
}

// claim serialises work on one key. A second caller waits for the first to
// finish and then sees its processed key.
func (f *Factory) claim(ctx context.Context, k string) (func(), error) {
	for {
		f.mu.Lock()
		busy, ok := f.inflight[k]
		if !ok {
			ch := make(chan struct{})
			f.inflight[k] = ch
			f.mu.Unlock()
			return func() {
				f.mu.Lock()
				delete(f.inflight, k)
				f.mu.Unlock()
				close(ch)
			}, nil
		}
		f.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *Factory) skipped(reason string) {
	if f.metrics != nil {
		f.metrics.EventsSkipped.WithLabelValues(reason).Inc()
	}
}

// build renders the notification for ev. Clinic ids are embedded raw after a
// connector word; the feed resolves them to names before display.
func build(userID string, ev domain.Event, now time.Time) *domain.Notification {
	n := &domain.Notification{
		NotificationID:  id.At(now),
		UserID:          userID,
		Type:            ev.Type(),
		Timestamp:       now.UnixMilli(),
		NotificationKey: ev.Key(),
	}

	switch e := ev.(type) {
	case domain.PrescriptionEvent:
		n.Title = "New prescription"
		n.Message = withDetail(e.Medication, e.Dosage) + " was prescribed" + at(e.ClinicID)
		n.RelatedID = e.EntryID
		n.Priority = domain.PriorityMedium
	case domain.CertificateEvent:
		n.Title = "New certificate"
		n.Message = "A " + e.CertificateType + " certificate was issued" + at(e.ClinicID)
		n.RelatedID = e.EntryID
		n.Priority = domain.PriorityLow
	case domain.AppointmentEvent:
		n.Title = appointmentTitles[e.Status]
		n.Message = "Appointment " + string(e.Status) + at(e.ClinicID)
		n.RelatedID = e.AppointmentID
		n.Priority = appointmentPriority(e.Status)
	case domain.ReferralEvent:
		n.Title = "New referral"
		n.Message = "You have been referred"
		if e.Specialty != "" {
			n.Message += " to " + e.Specialty
		}
		n.Message += at(e.ClinicID)
		n.RelatedID = e.ReferralID
		n.Priority = domain.PriorityMedium
	default:
		panic(errors.New("minting: unhandled event variant"))
	}
	return n
}

var appointmentTitles = map[domain.AppointmentStatus]string{
	domain.AppointmentPending:   "Appointment requested",
	domain.AppointmentConfirmed: "Appointment confirmed",
	domain.AppointmentCancelled: "Appointment cancelled",
	domain.AppointmentCompleted: "Appointment completed",
}

func appointmentPriority(s domain.AppointmentStatus) domain.Priority {
	switch s {
	case domain.AppointmentCancelled:
		return domain.PriorityHigh
	case domain.AppointmentConfirmed:
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func at(clinicID string) string {
	if clinicID == "" {
		return ""
	}
	return " at " + clinicID
}

func withDetail(s, detail string) string {
	if detail == "" {
		return s
	}
	return s + " " + detail
}
