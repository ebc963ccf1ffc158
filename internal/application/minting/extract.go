package minting

import (
	"time"

	"github.com/care-notify/internal/domain"
)

// Conversions from source documents into domain events. Every item that can
// mint is emitted on every read; the dedup guard drops the ones already seen.
// Items whose timestamps all fall before cutoff are skipped: their processed
// keys may already have been cleaned up. A zero cutoff keeps everything.

func historyEvents(entries []domain.MedicalHistoryEntry, cutoff time.Time) []domain.Event {
	var events []domain.Event
	for _, e := range entries {
		if stale(cutoff, e.CreatedAt) {
			continue
		}
		for _, p := range e.Prescriptions {
			events = append(events, domain.PrescriptionEvent{
				EntryID:    e.EntryID,
				Medication: p.Medication,
				Dosage:     p.Dosage,
				ClinicID:   e.ClinicID,
			})
		}
		for _, c := range e.Certificates {
			events = append(events, domain.CertificateEvent{
				EntryID:         e.EntryID,
				CertificateType: c.Type,
				ClinicID:        e.ClinicID,
			})
		}
	}
	return events
}

func appointmentEvents(appointments []domain.Appointment, audience domain.Section, cutoff time.Time) []domain.Event {
	events := make([]domain.Event, 0, len(appointments))
	for _, a := range appointments {
		if stale(cutoff, a.ScheduledAt, a.UpdatedAt) {
			continue
		}
		events = append(events, domain.AppointmentEvent{
			AppointmentID: a.AppointmentID,
			Status:        a.Status,
			ClinicID:      a.ClinicID,
			ScheduledAt:   a.ScheduledAt,
			Audience:      audience,
		})
	}
	return events
}

func referralEvents(referrals []domain.Referral, cutoff time.Time) []domain.Event {
	events := make([]domain.Event, 0, len(referrals))
	for _, r := range referrals {
		if stale(cutoff, r.CreatedAt) {
			continue
		}
		events = append(events, domain.ReferralEvent{
			ReferralID: r.ReferralID,
			Specialty:  r.Specialty,
			ClinicID:   r.ClinicID,
		})
	}
	return events
}

// stale reports whether every parseable stamp is before cutoff. An item with
// no parseable stamp is never stale.
func stale(cutoff time.Time, stamps ...string) bool {
	if cutoff.IsZero() {
		return false
	}
	known := false
	for _, s := range stamps {
		t, ok := parseStamp(s)
		if !ok {
			continue
		}
		if !t.Before(cutoff) {
			return false
		}
		known = true
	}
	return known
}

var stampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func parseStamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
