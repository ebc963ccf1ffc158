// Package routing maps notifications onto in-app navigation targets.
package routing

import (
	"fmt"

	"github.com/care-notify/internal/domain"
	"github.com/rs/zerolog/log"
)

// Target is a concrete destination for the client's navigator.
type Target struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
}

var destinations = map[domain.NotificationType]string{
	domain.TypeReferral:     "referrals",
	domain.TypePrescription: "prescriptions",
	domain.TypeCertificate:  "certificates",
}

// Resolve picks the destination for n as seen from section. Rules, first
// match wins: appointments always open the visit overview; a stored route is
// used as-is; otherwise the route is derived from the type with relatedId as
// its only parameter.
func Resolve(n domain.Notification, section domain.Section) (Target, error) {
	if n.Type == domain.TypeAppointment {
		return Target{
			Route:  "/" + string(section) + "/visit-overview",
			Params: map[string]string{"appointmentId": n.RelatedID},
		}, nil
	}
	if n.Route != "" {
		return Target{Route: n.Route, Params: n.RouteParams}, nil
	}
	if dest, ok := destinations[n.Type]; ok {
		t := Target{Route: "/" + string(section) + "/" + dest}
		if n.RelatedID != "" {
			t.Params = map[string]string{"id": n.RelatedID}
		}
		return t, nil
	}

	log.Warn().Str("notification_id", n.NotificationID).Str("type", string(n.Type)).Msg("notification is not navigable")
	return Target{}, fmt.Errorf("notification %s of type %q: %w", n.NotificationID, n.Type, domain.ErrNotNavigable)
}
