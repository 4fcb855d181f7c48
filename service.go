package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the page size of a listing without a limit.
	DefaultPageSize = 25
	// MaxPageSize is the largest limit a listing accepts.
	MaxPageSize = 100
)

// Cache is an optional read-through cache of users keyed by id.
//
// Set runs after a store read and may race a concurrent update or delete.
// Implementations must not let a Set that follows Invalidate restore the
// entry while such a read can still be in flight.
type Cache interface {
	// Get returns the cached user, or nil on a miss.
	Get(ctx context.Context, id string) (*User, error)
	// Set caches u unless the entry exists or was recently invalidated.
	Set(ctx context.Context, u *User) error
	// Invalidate evicts the user after a write.
	Invalidate(ctx context.Context, id string) error
}

// Service orchestrates user requests on top of a Store: input validation,
// the email uniqueness check on create, and the existence checks on update
// and delete.
type Service struct {
	Store           *Store
	Cache           Cache // may be nil
	DefaultPageSize int
	MaxPageSize     int
}

// NewService creates a Service with default page sizes and no cache.
func NewService(store *Store) *Service {
	return &Service{
		Store:           store,
		DefaultPageSize: DefaultPageSize,
		MaxPageSize:     MaxPageSize,
	}
}

// Create registers a new user. The email must not belong to an existing
// user; the check happens before the write and is not atomic with it.
// The stored user is read back and returned.
func (s *Service) Create(ctx context.Context, fields UserFields) (*User, error) {
	log := zerolog.Ctx(ctx)

	fields.Username = strings.TrimSpace(fields.Username)
	fields.Email = strings.TrimSpace(fields.Email)
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Store.GetByEmail(ctx, fields.Email)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: email %s is registered to user %s", ErrConflict, fields.Email, existing[0].UserID)
	}

	id, err := s.Store.Create(ctx, fields)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", id).Msg("user created")

	u, err := s.Store.GetByID(ctx, id)
	if err != nil {
		// unwrapped: must not map to ErrNotFound
		return nil, fmt.Errorf("read back created user %s: %v", id, err)
	}
	return u, nil
}

// Get finds a user by id, or by email when idOrEmail is not a valid id.
func (s *Service) Get(ctx context.Context, idOrEmail string) (*User, error) {
	idOrEmail = strings.TrimSpace(idOrEmail)
	if idOrEmail == "" {
		return nil, fmt.Errorf("%w: user id or email is required", ErrInvalidInput)
	}

	if id, err := ParseID(idOrEmail); err == nil {
		return s.getByID(ctx, id)
	}

	users, err := s.Store.GetByEmail(ctx, idOrEmail)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, ErrNotFound
	case 1:
	default:
		zerolog.Ctx(ctx).Warn().
			Str("email", idOrEmail).
			Int("count", len(users)).
			Msg("multiple users share an email, returning the first")
	}
	return &users[0], nil
}

func (s *Service) getByID(ctx context.Context, id string) (*User, error) {
	log := zerolog.Ctx(ctx)

	if s.Cache != nil {
		if u, err := s.Cache.Get(ctx, id); err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("user cache read failed")
		} else if u != nil {
			return u, nil
		}
	}

	u, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, u); err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("user cache write failed")
		}
	}
	return u, nil
}

// Update replaces the attributes of an existing user. Optional fields left
// out of fields are cleared.
func (s *Service) Update(ctx context.Context, id string, fields UserFields) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	fields.Username = strings.TrimSpace(fields.Username)
	fields.Email = strings.TrimSpace(fields.Email)
	if err := fields.Validate(); err != nil {
		return err
	}

	if _, err := s.Store.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.Store.Update(ctx, id, fields); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	zerolog.Ctx(ctx).Info().Str("user_id", id).Msg("user updated")
	return nil
}

// Delete removes an existing user.
func (s *Service) Delete(ctx context.Context, id string) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	if _, err := s.Store.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	zerolog.Ctx(ctx).Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// List returns one page of users. A limit of zero selects the default page size.
func (s *Service) List(ctx context.Context, limit int, cursor string) (Page, error) {
	if limit == 0 {
		limit = s.DefaultPageSize
	}
	if limit < 1 || (s.MaxPageSize > 0 && limit > s.MaxPageSize) {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, s.MaxPageSize)
	}
	return s.Store.List(ctx, limit, cursor)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, id); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("user cache invalidation failed")
	}
}

// IsClientError reports whether err was caused by the request rather than the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
