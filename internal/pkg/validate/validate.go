package validate

import (
	"fmt"
	"strings"

	"github.com/care-notify/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Event validates a domain event at the stream boundary. Failures wrap
// domain.ErrInvalidEvent.
func Event(ev domain.Event) error {
	if ev == nil {
		return fmt.Errorf("nil event: %w", domain.ErrInvalidEvent)
	}
	if err := Struct(ev); err != nil {
		return fmt.Errorf("%s %s: %w", ev.Type(), err.Error(), domain.ErrInvalidEvent)
	}
	return nil
}
