package routing

import (
	"testing"

	"github.com/care-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		n       domain.Notification
		section domain.Section
		want    Target
	}{
		{
			name:    "appointment ignores stored route",
			n:       domain.Notification{Type: domain.TypeAppointment, RelatedID: "a1", Route: "/foo"},
			section: domain.SectionPatient,
			want:    Target{Route: "/patient/visit-overview", Params: map[string]string{"appointmentId": "a1"}},
		},
		{
			name:    "appointment follows section",
			n:       domain.Notification{Type: domain.TypeAppointment, RelatedID: "a1"},
			section: domain.SectionSpecialist,
			want:    Target{Route: "/specialist/visit-overview", Params: map[string]string{"appointmentId": "a1"}},
		},
		{
			name:    "stored route used as-is",
			n:       domain.Notification{Type: domain.TypeReferral, RelatedID: "r1", Route: "/patient/referral-detail", RouteParams: map[string]string{"referralId": "r1"}},
			section: domain.SectionPatient,
			want:    Target{Route: "/patient/referral-detail", Params: map[string]string{"referralId": "r1"}},
		},
		{
			name:    "derived prescription route",
			n:       domain.Notification{Type: domain.TypePrescription, RelatedID: "e1"},
			section: domain.SectionPatient,
			want:    Target{Route: "/patient/prescriptions", Params: map[string]string{"id": "e1"}},
		},
		{
			name:    "derived certificate route for specialist",
			n:       domain.Notification{Type: domain.TypeCertificate, RelatedID: "e2"},
			section: domain.SectionSpecialist,
			want:    Target{Route: "/specialist/certificates", Params: map[string]string{"id": "e2"}},
		},
		{
			name:    "derived referral route without related id",
			n:       domain.Notification{Type: domain.TypeReferral},
			section: domain.SectionPatient,
			want:    Target{Route: "/patient/referrals"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.n, tt.section)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnknownTypeIsNotNavigable(t *testing.T) {
	_, err := Resolve(domain.Notification{NotificationID: "n1", Type: "billing"}, domain.SectionPatient)
	assert.ErrorIs(t, err, domain.ErrNotNavigable)
}
