package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DefaultTimeout bounds each call a Store makes to DynamoDB.
const DefaultTimeout = 5 * time.Second

// Page is one page of a user listing. Cursor is empty on the last page.
type Page struct {
	Users  []User
	Cursor string
}

// MarshalJSON renders the page as {"data": [...], "token": "..." | null}.
func (p Page) MarshalJSON() ([]byte, error) {
	out := struct {
		Data  []User  `json:"data"`
		Token *string `json:"token"`
	}{Data: p.Users}
	if out.Data == nil {
		out.Data = []User{}
	}
	if p.Cursor != "" {
		out.Token = &p.Cursor
	}
	return json.Marshal(out)
}

// Store is the storage gateway for users. It translates each operation into a
// single DynamoDB request and maps the result back into users or errors.
type Store struct {
	Table   *Table
	Client  DynamoDBClient
	Timeout time.Duration // per call; zero disables the bound
}

// NewStore creates a Store with the default timeout.
func NewStore(table *Table, client DynamoDBClient) *Store {
	return &Store{
		Table:   table,
		Client:  client,
		Timeout: DefaultTimeout,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// GetByID fetches the user with the given id using a consistent read.
// It returns ErrNotFound when no such user exists.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.Client.GetItem(ctx, s.Table.MarshalGet(id))
	if err != nil {
		return nil, storeError("get user "+id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	u, err := UnmarshalUser(out.Item)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// GetByEmail returns every user registered with email. An empty result means
// there is none; more than one means the advisory uniqueness check was raced.
func (s *Store) GetByEmail(ctx context.Context, email string) ([]User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input, err := s.Table.MarshalQuery(&QueryByEmail{Email: email})
	if err != nil {
		return nil, err
	}

	var users []User
	for {
		out, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, storeError("query users by email", err)
		}

		page, err := UnmarshalUsers(out.Items)
		if err != nil {
			return nil, fmt.Errorf("query users by email: %w", err)
		}
		users = append(users, page...)

		if len(out.LastEvaluatedKey) == 0 {
			return users, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Create stores a new user built from fields and returns its generated id.
func (s *Store) Create(ctx context.Context, fields UserFields) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u := NewUser(s.Table.newID(), fields, s.Table.now())

	input, err := s.Table.MarshalPut(u)
	if err != nil {
		return "", err
	}

	if _, err := s.Client.PutItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return "", fmt.Errorf("%w: id %s is taken", ErrConflict, u.UserID)
		}
		return "", storeError("create user", err)
	}

	return u.UserID, nil
}

// Update replaces the attributes of the user with fields and refreshes its
// updated date. It returns ErrNotFound if the user no longer exists.
func (s *Store) Update(ctx context.Context, id string, fields UserFields) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input, err := s.Table.MarshalUpdate(id, fields, s.Table.now())
	if err != nil {
		return err
	}

	if _, err := s.Client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return storeError("update user "+id, err)
	}
	return nil
}

// Delete removes the user with the given id. Deleting a missing user succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.Client.DeleteItem(ctx, s.Table.MarshalDelete(id)); err != nil {
		return storeError("delete user "+id, err)
	}
	return nil
}

// Put writes users verbatim in batches, replacing any existing items with the
// same ids. Unprocessed items are retried until ctx is done.
func (s *Store) Put(ctx context.Context, users ...User) error {
	batches, err := s.Table.MarshalBatch(users)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		for len(batch.RequestItems) > 0 {
			callCtx, cancel := s.withTimeout(ctx)
			out, err := s.Client.BatchWriteItem(callCtx, batch)
			cancel()
			if err != nil {
				return storeError("batch put users", err)
			}
			batch.RequestItems = out.UnprocessedItems
		}
	}
	return nil
}

// List returns up to limit users ordered by id, resuming after cursor when it
// is not empty. A malformed cursor yields ErrMalformedToken.
func (s *Store) List(ctx context.Context, limit int, cursor string) (Page, error) {
	paginator := s.Table.Paginator()

	startKey, err := paginator.StartKey(ctx, cursor)
	if err != nil {
		return Page{}, err
	}

	input, err := s.Table.MarshalQuery(&QueryList{Limit: limit, StartKey: startKey})
	if err != nil {
		return Page{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.Client.Query(ctx, input)
	if err != nil {
		return Page{}, storeError("list users", err)
	}

	users, err := UnmarshalUsers(out.Items)
	if err != nil {
		return Page{}, fmt.Errorf("list users: %w", err)
	}

	next, err := paginator.PageCursor(ctx, out.LastEvaluatedKey)
	if err != nil {
		return Page{}, fmt.Errorf("list users: %w", err)
	}

	return Page{Users: users, Cursor: next}, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// storeError wraps a failed DynamoDB call. Deadlines, cancellation and
// throttling also match ErrUnavailable.
func storeError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable", "InternalServerError":
			return true
		}
	}
	return false
}
