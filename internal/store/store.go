package store

import (
	"context"
	"errors"
	"time"

	"github.com/cipherdial/cipherdial/internal/models"
)

// ErrPhoneTaken is returned when an identity insert hits the unique phone
// constraint.
var ErrPhoneTaken = errors.New("phone is already registered")

// NameUpdate carries a partial profile update; nil fields are left untouched.
type NameUpdate struct {
	FirstName *string
	LastName  *string
}

// IdentityStore persists account records. Lookups return (nil, nil) when no
// record matches.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, phone, passwordHash, firstName, lastName string) (*models.Identity, error)
	GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error)
	GetIdentityByPhone(ctx context.Context, phone string) (*models.Identity, error)
	UpdateIdentityName(ctx context.Context, id int64, upd NameUpdate) (*models.Identity, error)
	SearchIdentities(ctx context.Context, phoneFragment string, excludeID int64, limit int) ([]models.Identity, error)
	CountIdentities(ctx context.Context) (int64, error)
}

// DialogStore maintains the canonical 1:1 conversation pairs. Implementations
// canonicalize the pair (lower id first) and rely on the unique constraint
// plus a read-after-conflict fallback so concurrent duplicate creates
// converge on one row.
type DialogStore interface {
	GetOrCreateDialog(ctx context.Context, userA, userB int64) (*models.Dialog, bool, error)
	GetDialog(ctx context.Context, id int64) (*models.Dialog, error)
	ListDialogsForIdentity(ctx context.Context, identityID int64) ([]models.Dialog, error)
	CountDialogs(ctx context.Context) (int64, error)
}

// MessageFilter narrows a message listing; After restricts to messages
// strictly newer than the given instant.
type MessageFilter struct {
	After  *time.Time
	Limit  int
	Offset int
}

// MessageStore is the append-only per-dialog message log.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, dialogID int64, f MessageFilter) ([]models.Message, int, error)
	LatestMessage(ctx context.Context, dialogID int64) (*models.Message, error)
	CountMessages(ctx context.Context) (int64, error)
	LastMessageTime(ctx context.Context) (*time.Time, error)
}

// DataStore is the full persistence surface. Both PostgresStore and
// SQLiteStore implement it.
type DataStore interface {
	Close()
	Ping(ctx context.Context) error

	IdentityStore
	DialogStore
	MessageStore
}

// canonicalPair orders two identity ids so the smaller is always first,
// collapsing (a,b) and (b,a) onto the same dialog row.
func canonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
