package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrNotFound is returned when no user matches the requested id or email.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a create collides with an existing user.
	ErrConflict = errors.New("user already exists")
	// ErrMalformedToken is returned when a pagination token cannot be decoded.
	ErrMalformedToken = errors.New("malformed pagination token")
	// ErrMissingField is matched by every [MissingFieldError].
	ErrMissingField = errors.New("missing required field")
	// ErrUnavailable is returned when the store times out or throttles a request.
	ErrUnavailable = errors.New("user store unavailable")
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// MissingFieldError reports a stored user item that lacks a required attribute.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// Unwrap allows errors.Is(err, ErrMissingField).
func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// Clock is a function type that returns the current time for dependency injection.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// Table contains DynamoDB table configuration for the user store.
type Table struct {
	TableName      string        // Main table name
	EmailIndexName string        // Email lookup index (GSI1PK, GSI1SK)
	ListIndexName  string        // Ordered listing index (GSI2PK, GSI2SK)
	Tick           Clock         // Timestamp source for created and updated dates
	NewID          func() string // Identifier source for new users
}

// NewTable creates a new Table with default configuration.
func NewTable(tableName string) *Table {
	return &Table{
		TableName:      tableName,
		EmailIndexName: "GSI1",
		ListIndexName:  "GSI2",
		Tick:           DefaultClock,
		NewID:          NewID,
	}
}

func (t *Table) now() time.Time {
	if t.Tick == nil {
		return DefaultClock()
	}
	return t.Tick()
}

func (t *Table) newID() string {
	if t.NewID == nil {
		return NewID()
	}
	return t.NewID()
}

// Key prefixes used by the single-table layout.
const (
	KeyPrefixUser     = "USER#"
	KeyPrefixEmail    = "EMAIL#"
	KeyPrefixUsername = "USERNAME#"
)

// Attribute names of a stored user item.
const (
	AttributeNamePK           = "PK"
	AttributeNameSK           = "SK"
	AttributeNameUserID       = "UserId"
	AttributeNameUsername     = "Username"
	AttributeNameFirstName    = "FirstName"
	AttributeNameLastName     = "LastName"
	AttributeNameEmail        = "Email"
	AttributeNameProfilePhoto = "ProfilePhoto"
	AttributeNameSummary      = "Summary"
	AttributeNamePhoneNumber  = "PhoneNumber"
	AttributeNameGSI1PK       = "GSI1PK"
	AttributeNameGSI1SK       = "GSI1SK"
	AttributeNameGSI2PK       = "GSI2PK"
	AttributeNameGSI2SK       = "GSI2SK"
	AttributeNameCreatedDate  = "CreatedDate"
	AttributeNameUpdatedDate  = "UpdatedDate"
)

// UserKey returns the table partition and sort key of a user. Both keys are
// "USER#" followed by the id.
func UserKey(id string) (pk, sk string) {
	key := KeyPrefixUser + id
	return key, key
}

// EmailIndexKey returns the email index keys of a user.
func EmailIndexKey(email, username string) (pk, sk string) {
	return KeyPrefixEmail + email, KeyPrefixUsername + username
}

// ListIndexKey returns the list index keys of a user. Every user shares the
// "USER#" partition and sorts by id within it.
func ListIndexKey(id string) (pk, sk string) {
	return KeyPrefixUser, KeyPrefixUser + id
}

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// DynamoDBClient interface for easier testing and connection management.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// TableAdminClient is the subset of the DynamoDB client needed to provision the table.
type TableAdminClient interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}
