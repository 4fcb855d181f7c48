package dynamock

import (
	"strings"
	"sync"
	"time"

	"github.com/nisimpson/userstore"
)

// Epoch is the default creation time of built users.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// UserOption is a functional option for configuring users during building.
type UserOption func(*userstore.User)

// NewUser builds a user. Unset ids default to a fresh ULID, unset usernames
// and emails are derived from the id, and both timestamps default to Epoch.
func NewUser(opts ...UserOption) userstore.User {
	u := userstore.User{
		CreatedDate: Epoch,
		UpdatedDate: Epoch,
	}
	for _, opt := range opts {
		opt(&u)
	}

	if u.UserID == "" {
		u.UserID = userstore.NewIDAt(u.CreatedDate)
	}
	if u.Username == "" {
		u.Username = "user-" + strings.ToLower(u.UserID[max(0, len(u.UserID)-6):])
	}
	if u.Email == "" {
		u.Email = u.Username + "@example.com"
	}
	return u
}

// NewUsers builds n users whose ids ascend in creation order, one
// millisecond apart starting at Epoch. The options apply to every user.
func NewUsers(n int, opts ...UserOption) []userstore.User {
	users := make([]userstore.User, 0, n)
	for i := range n {
		at := Epoch.Add(time.Duration(i) * time.Millisecond)
		base := []UserOption{WithID(userstore.NewIDAt(at)), WithTimestamps(at)}
		users = append(users, NewUser(append(base, opts...)...))
	}
	return users
}

// NewFields builds create or update fields from the same options as NewUser.
func NewFields(opts ...UserOption) userstore.UserFields {
	return NewUser(opts...).Fields()
}

// WithID sets the user id.
func WithID(id string) UserOption {
	return func(u *userstore.User) { u.UserID = id }
}

// WithUsername sets the username.
func WithUsername(username string) UserOption {
	return func(u *userstore.User) { u.Username = username }
}

// WithEmail sets the email address.
func WithEmail(email string) UserOption {
	return func(u *userstore.User) { u.Email = email }
}

// WithName sets the first and last name.
func WithName(first, last string) UserOption {
	return func(u *userstore.User) {
		u.FirstName = userstore.Some(first)
		u.LastName = userstore.Some(last)
	}
}

// WithProfilePhoto sets the profile photo URL.
func WithProfilePhoto(url string) UserOption {
	return func(u *userstore.User) { u.ProfilePhoto = userstore.Some(url) }
}

// WithSummary sets the summary.
func WithSummary(summary string) UserOption {
	return func(u *userstore.User) { u.Summary = userstore.Some(summary) }
}

// WithPhoneNumber sets the phone number.
func WithPhoneNumber(phone string) UserOption {
	return func(u *userstore.User) { u.PhoneNumber = userstore.Some(phone) }
}

// WithTimestamps sets both the created and updated dates.
func WithTimestamps(at time.Time) UserOption {
	return func(u *userstore.User) {
		u.CreatedDate = at
		u.UpdatedDate = at
	}
}

// WithUpdated sets the updated date.
func WithUpdated(at time.Time) UserOption {
	return func(u *userstore.User) { u.UpdatedDate = at }
}

// StepClock returns a clock that starts at start and advances by step on
// every call. It is safe for concurrent use.
func StepClock(start time.Time, step time.Duration) userstore.Clock {
	var (
		mu   sync.Mutex
		next = start
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
