package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this.
type Store interface {
	Users() Users

	ApplyMigrations(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by normalised email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies a partial update, bumps updated_at and returns the
	// stored row.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error)

	// DeleteUser removes a user. Missing users return ErrNotFound.
	DeleteUser(ctx context.Context, id string) error
}
