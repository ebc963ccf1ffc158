package message

import (
	"context"
	"errors"
	"testing"

	"github.com/care-notify/internal/domain"
	"github.com/stretchr/testify/assert"
)

type mapResolver struct {
	names map[string]string
	calls []string
}

func (r *mapResolver) ResolveName(_ context.Context, id string) (string, error) {
	r.calls = append(r.calls, id)
	if n, ok := r.names[id]; ok {
		return n, nil
	}
	return "", domain.ErrNotFound
}

func newTestProcessor() (*Processor, *mapResolver) {
	r := &mapResolver{names: map[string]string{
		"clinic-abc123": "Riverside Clinic",
		"clinic_77":     "Harbor Medical Center",
		"clinic-1":      "Northside Clinic",
	}}
	return NewProcessor(r), r
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"resolves id after at", "Appointment confirmed at clinic-abc123", "Appointment confirmed at Riverside Clinic"},
		{"trailing punctuation", "Appointment confirmed at clinic-abc123.", "Appointment confirmed at Riverside Clinic."},
		{"every occurrence", "Moved from clinic-abc123 to clinic-abc123", "Moved from Riverside Clinic to Riverside Clinic"},
		{"connector with", "Visit with clinic_77 tomorrow", "Visit with Harbor Medical Center tomorrow"},
		{"unknown id untouched", "Appointment confirmed at clinic-zzz999", "Appointment confirmed at clinic-zzz999"},
		{"no connector", "clinic-abc123 sent a message", "clinic-abc123 sent a message"},
		{"longer id sharing a prefix", "Booked at clinic-1, moved to clinic-12", "Booked at Northside Clinic, moved to clinic-12"},
		{"longer id first", "Moved to clinic-12, confirmed at clinic-1", "Moved to clinic-12, confirmed at Northside Clinic"},
		{"id inside a token", "Seen at clinic-1 (ref clinic-1x)", "Seen at Northside Clinic (ref clinic-1x)"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProcessor()
			assert.Equal(t, tt.want, p.Process(context.Background(), tt.in))
		})
	}
}

func TestProcess_SkipsNonIdentifiers(t *testing.T) {
	p, r := newTestProcessor()
	msgs := []string{
		"Appointment at Riverside Clinic",  // readable name
		"Referred to cardiology",           // no id marker
		"Seen at c-12",                     // too short
		"Seen at abc123 Clinic",            // followed by a label
		"You have been referred to Dr Who", // short and capitalised
	}
	for _, m := range msgs {
		assert.Equal(t, m, p.Process(context.Background(), m))
	}
	assert.Empty(t, r.calls)
}

func TestProcess_Idempotent(t *testing.T) {
	p, _ := newTestProcessor()
	msgs := []string{
		"Appointment confirmed at clinic-abc123",
		"Visit with clinic_77 tomorrow",
		"Appointment confirmed at clinic-zzz999",
		"Lisinopril 10mg was prescribed at clinic-abc123",
	}
	for _, m := range msgs {
		once := p.Process(context.Background(), m)
		assert.Equal(t, once, p.Process(context.Background(), once), m)
	}
}

type failingResolver struct{}

func (failingResolver) ResolveName(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

func TestOccurrences(t *testing.T) {
	assert.Equal(t, []int{3, 21}, occurrences("at clinic-1 and also clinic-1.", "clinic-1"))
	assert.Empty(t, occurrences("at clinic-12 and xclinic-1", "clinic-1"))
	assert.Equal(t, []int{0}, occurrences("clinic-1", "clinic-1"))
}

func TestProcess_ResolverFailureKeepsText(t *testing.T) {
	p := NewProcessor(failingResolver{})
	assert.Equal(t, "Appointment confirmed at clinic-abc123", p.Process(context.Background(), "Appointment confirmed at clinic-abc123"))
}

func TestApply(t *testing.T) {
	p, _ := newTestProcessor()
	ns := []domain.Notification{
		{NotificationID: "n1", Message: "Appointment confirmed at clinic-abc123"},
		{NotificationID: "n2", Message: "You have been referred"},
	}
	p.Apply(context.Background(), ns)
	assert.Equal(t, "Appointment confirmed at Riverside Clinic", ns[0].Message)
	assert.Equal(t, "You have been referred", ns[1].Message)
}
