package userstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type optionalState uint8

const (
	optionalAbsent optionalState = iota
	optionalNull
	optionalPresent
)

// Optional is a string field that can be absent, explicitly null, or present.
// The zero value is absent. Present values are never empty; an empty string
// is treated as null.
type Optional struct {
	value string
	state optionalState
}

// Some returns a present Optional holding v, or a null Optional if v is empty.
func Some(v string) Optional {
	if v == "" {
		return Null()
	}
	return Optional{value: v, state: optionalPresent}
}

// Null returns an explicitly cleared Optional.
func Null() Optional {
	return Optional{state: optionalNull}
}

// Get returns the value and whether it is present.
func (o Optional) Get() (string, bool) {
	return o.value, o.state == optionalPresent
}

// Or returns the value when present and fallback otherwise.
func (o Optional) Or(fallback string) string {
	if o.state == optionalPresent {
		return o.value
	}
	return fallback
}

// IsPresent reports whether the Optional holds a value.
func (o Optional) IsPresent() bool { return o.state == optionalPresent }

// IsNull reports whether the Optional was explicitly cleared.
func (o Optional) IsNull() bool { return o.state == optionalNull }

// IsZero reports whether the value is absent, which drops it from JSON output
// under the omitzero option.
func (o Optional) IsZero() bool { return o.state == optionalAbsent }

// String returns the value, "null" or "<absent>".
func (o Optional) String() string {
	switch o.state {
	case optionalPresent:
		return o.value
	case optionalNull:
		return "null"
	default:
		return "<absent>"
	}
}

// MarshalJSON encodes a present value as a string and anything else as null.
func (o Optional) MarshalJSON() ([]byte, error) {
	if o.state != optionalPresent {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as Null and a string as Some.
func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Null()
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// User is the stored user entity as seen by callers. Storage keys are never
// part of it.
type User struct {
	UserID       string    `json:"UserId"`
	Username     string    `json:"Username"`
	FirstName    Optional  `json:"FirstName,omitzero"`
	LastName     Optional  `json:"LastName,omitzero"`
	Email        string    `json:"Email"`
	ProfilePhoto Optional  `json:"ProfilePhoto,omitzero"`
	Summary      Optional  `json:"Summary,omitzero"`
	PhoneNumber  Optional  `json:"PhoneNumber,omitzero"`
	CreatedDate  time.Time `json:"CreatedDate"`
	UpdatedDate  time.Time `json:"UpdatedDate"`
}

// UserFields holds the caller-supplied attributes of a create or update.
type UserFields struct {
	Username     string   `json:"Username"`
	FirstName    Optional `json:"FirstName,omitzero"`
	LastName     Optional `json:"LastName,omitzero"`
	Email        string   `json:"Email"`
	ProfilePhoto Optional `json:"ProfilePhoto,omitzero"`
	Summary      Optional `json:"Summary,omitzero"`
	PhoneNumber  Optional `json:"PhoneNumber,omitzero"`
}

// Validate checks the required fields.
func (f UserFields) Validate() error {
	var errs []error
	if strings.TrimSpace(f.Username) == "" {
		errs = append(errs, fmt.Errorf("%w: Username is required", ErrInvalidInput))
	}
	if email := strings.TrimSpace(f.Email); email == "" {
		errs = append(errs, fmt.Errorf("%w: Email is required", ErrInvalidInput))
	} else if !strings.Contains(email, "@") {
		errs = append(errs, fmt.Errorf("%w: Email %q is not an email address", ErrInvalidInput, email))
	}
	return errors.Join(errs...)
}

type optionalField struct {
	name  string
	value Optional
}

func (f UserFields) optionals() []optionalField {
	return []optionalField{
		{AttributeNameFirstName, f.FirstName},
		{AttributeNameLastName, f.LastName},
		{AttributeNameProfilePhoto, f.ProfilePhoto},
		{AttributeNameSummary, f.Summary},
		{AttributeNamePhoneNumber, f.PhoneNumber},
	}
}

// Fields returns the caller-editable attributes of u.
func (u User) Fields() UserFields {
	return UserFields{
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		ProfilePhoto: u.ProfilePhoto,
		Summary:      u.Summary,
		PhoneNumber:  u.PhoneNumber,
	}
}

// NewUser builds a user with the given id whose created and updated dates are both now.
func NewUser(id string, fields UserFields, now time.Time) User {
	return User{
		UserID:       id,
		Username:     fields.Username,
		FirstName:    fields.FirstName,
		LastName:     fields.LastName,
		Email:        fields.Email,
		ProfilePhoto: fields.ProfilePhoto,
		Summary:      fields.Summary,
		PhoneNumber:  fields.PhoneNumber,
		CreatedDate:  now,
		UpdatedDate:  now,
	}
}

// userRecord is the flat storage form of a user.
type userRecord struct {
	PK           string    `dynamodbav:"PK"`
	SK           string    `dynamodbav:"SK"`
	UserID       string    `dynamodbav:"UserId"`
	Username     string    `dynamodbav:"Username"`
	FirstName    string    `dynamodbav:"FirstName,omitempty"`
	LastName     string    `dynamodbav:"LastName,omitempty"`
	Email        string    `dynamodbav:"Email"`
	ProfilePhoto string    `dynamodbav:"ProfilePhoto,omitempty"`
	Summary      string    `dynamodbav:"Summary,omitempty"`
	PhoneNumber  string    `dynamodbav:"PhoneNumber,omitempty"`
	GSI1PK       string    `dynamodbav:"GSI1PK"`
	GSI1SK       string    `dynamodbav:"GSI1SK"`
	GSI2PK       string    `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK       string    `dynamodbav:"GSI2SK,omitempty"`
	CreatedDate  time.Time `dynamodbav:"CreatedDate"`
	UpdatedDate  time.Time `dynamodbav:"UpdatedDate"`
}

// requiredAttributes lists the attributes every stored user must carry, in
// the order they are checked.
var requiredAttributes = []string{
	AttributeNamePK,
	AttributeNameSK,
	AttributeNameUserID,
	AttributeNameUsername,
	AttributeNameEmail,
	AttributeNameGSI1PK,
	AttributeNameGSI1SK,
	AttributeNameCreatedDate,
	AttributeNameUpdatedDate,
}

// MarshalUser converts u into a storage item with all derived keys. Optional
// fields that are not present are omitted.
func MarshalUser(u User) (Item, error) {
	pk, sk := UserKey(u.UserID)
	gsi1pk, gsi1sk := EmailIndexKey(u.Email, u.Username)
	gsi2pk, gsi2sk := ListIndexKey(u.UserID)

	rec := userRecord{
		PK:           pk,
		SK:           sk,
		UserID:       u.UserID,
		Username:     u.Username,
		FirstName:    u.FirstName.Or(""),
		LastName:     u.LastName.Or(""),
		Email:        u.Email,
		ProfilePhoto: u.ProfilePhoto.Or(""),
		Summary:      u.Summary.Or(""),
		PhoneNumber:  u.PhoneNumber.Or(""),
		GSI1PK:       gsi1pk,
		GSI1SK:       gsi1sk,
		GSI2PK:       gsi2pk,
		GSI2SK:       gsi2sk,
		CreatedDate:  u.CreatedDate,
		UpdatedDate:  u.UpdatedDate,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user %s: %w", u.UserID, err)
	}
	return item, nil
}

// UnmarshalUser converts a storage item back into a user. A missing required
// attribute yields a *MissingFieldError. Optional attributes that are missing
// or empty come back absent.
func UnmarshalUser(item Item) (User, error) {
	for _, name := range requiredAttributes {
		av, ok := item[name]
		if !ok {
			return User{}, &MissingFieldError{Field: name}
		}
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			return User{}, &MissingFieldError{Field: name}
		}
	}

	var rec userRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return User{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return User{
		UserID:       rec.UserID,
		Username:     rec.Username,
		FirstName:    readOptional(rec.FirstName),
		LastName:     readOptional(rec.LastName),
		Email:        rec.Email,
		ProfilePhoto: readOptional(rec.ProfilePhoto),
		Summary:      readOptional(rec.Summary),
		PhoneNumber:  readOptional(rec.PhoneNumber),
		CreatedDate:  rec.CreatedDate,
		UpdatedDate:  rec.UpdatedDate,
	}, nil
}

// UnmarshalUsers calls [UnmarshalUser] on each item and stops at the first failure.
func UnmarshalUsers(items []Item) ([]User, error) {
	users := make([]User, 0, len(items))
	for i, item := range items {
		u, err := UnmarshalUser(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal item %d: %w", i, err)
		}
		users = append(users, u)
	}
	return users, nil
}

func readOptional(v string) Optional {
	if v == "" {
		return Optional{}
	}
	return Some(v)
}
