package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no profile exists for a user.
var ErrNotFound = errors.New("profile not found")

// Turn is one user-message/reply pair. Immutable once appended; turn
// timestamps are non-decreasing within a profile's history.
type Turn struct {
	ID          string    `json:"id,omitempty"`
	UserMessage string    `json:"message"`
	Reply       string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
}

// Profile is the configured companion for one user, together with the
// ordered turn history. JSON field names match the public API.
type Profile struct {
	UserID      string `json:"userId"`
	Name        string `json:"husbandName"`
	Personality string `json:"personality"`
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	History     []Turn `json:"conversations"`
}

// Store owns profile records and their turn history. AppendTurn is
// serialized per profile so concurrent exchanges for the same user
// cannot interleave history writes.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, p Profile) (*Profile, error)
	AppendTurn(ctx context.Context, userID string, turn Turn) error
	History(ctx context.Context, userID string, limit int) ([]Turn, error)
	Close() error
}
