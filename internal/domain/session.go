package domain

import "time"

// Session describes one signed-in user's realtime notification session.
type Session struct {
	SessionID string    `json:"id"`
	UserID    string    `json:"userId"`
	Section   Section   `json:"section"`
	CreatedAt time.Time `json:"created"`
}
