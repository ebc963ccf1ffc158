package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a ULID for the current instant.
func New() string {
	return ulid.Make().String()
}

// At generates a ULID whose time component is t. Notification ids minted with
// their own timestamp sort the same way the feed does.
func At(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
