package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nisimpson/userstore"
)

// SeedFromJSON reads a JSON array of users in the API representation and
// stores them. Users without an id get a new one, and users without a
// creation date are stamped with Epoch. Returns the number of users saved.
//
//	[
//	  {"Username": "ada", "Email": "ada@example.com", "FirstName": "Ada"},
//	  {"UserId": "01HZX...", "Username": "bob", "Email": "bob@example.com"}
//	]
func (s *SeedTestData) SeedFromJSON(ctx context.Context, r io.Reader) (int, error) {
	users, err := DecodeUsers(r)
	if err != nil {
		return 0, err
	}

	if err := s.SeedUsers(ctx, users...); err != nil {
		return 0, err
	}
	return len(users), nil
}

// DecodeUsers parses a JSON array of users, validating the required fields
// and filling in missing ids and timestamps.
func DecodeUsers(r io.Reader) ([]userstore.User, error) {
	var users []userstore.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	for i := range users {
		u := &users[i]
		if err := u.Fields().Validate(); err != nil {
			return nil, fmt.Errorf("user at index %d: %w", i, err)
		}

		if u.CreatedDate.IsZero() {
			u.CreatedDate = Epoch
		}
		if u.UpdatedDate.IsZero() {
			u.UpdatedDate = u.CreatedDate
		}

		if u.UserID == "" {
			u.UserID = userstore.NewIDAt(u.CreatedDate)
		} else if id, err := userstore.ParseID(u.UserID); err != nil {
			return nil, fmt.Errorf("user at index %d: %w", i, err)
		} else {
			u.UserID = id
		}
	}

	return users, nil
}
