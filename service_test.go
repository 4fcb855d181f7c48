package userstore_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/userstore"
	"github.com/nisimpson/userstore/dynamock"
	"github.com/nisimpson/userstore/dynamock/assert"
	"github.com/rs/zerolog"
)

func newMemoryService(t *testing.T) (*userstore.Service, *dynamock.MemoryClient) {
	t.Helper()
	store, client := newMemoryStore(t)
	return userstore.NewService(store), client
}

// logContext returns a context carrying a logger that writes to buf.
func logContext(buf *bytes.Buffer) context.Context {
	logger := zerolog.New(buf)
	return logger.WithContext(context.Background())
}

type memoryCache struct {
	mu          sync.Mutex
	users       map[string]userstore.User
	tombstones  map[string]bool
	hits        int
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		users:      make(map[string]userstore.User),
		tombstones: make(map[string]bool),
	}
}

func (c *memoryCache) Get(_ context.Context, id string) (*userstore.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &u, nil
}

func (c *memoryCache) Set(_ context.Context, u *userstore.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.users[u.UserID]; ok || c.tombstones[u.UserID] {
		return nil
	}
	c.users[u.UserID] = *u
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
	c.tombstones[id] = true
	c.invalidated = append(c.invalidated, id)
	return nil
}

// gatedCache holds the first Set until release is closed.
type gatedCache struct {
	*memoryCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		memoryCache: newMemoryCache(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (c *gatedCache) Set(ctx context.Context, u *userstore.User) error {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return c.memoryCache.Set(ctx, u)
}

func TestService_Create(t *testing.T) {
	t.Run("stores and reads back", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := logContext(&buf)
		svc, _ := newMemoryService(t)

		u, err := svc.Create(ctx, dynamock.NewFields(
			dynamock.WithUsername("  ada  "),
			dynamock.WithEmail("ada@example.com"),
			dynamock.WithName("Ada", "Lovelace"),
		))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if !userstore.IsID(u.UserID) {
			t.Errorf("expected generated id, got %q", u.UserID)
		}
		if u.Username != "ada" {
			t.Errorf("expected trimmed username, got %q", u.Username)
		}
		if !u.CreatedDate.Equal(u.UpdatedDate) {
			t.Errorf("expected equal timestamps on create, got %v and %v", u.CreatedDate, u.UpdatedDate)
		}
		if !strings.Contains(buf.String(), "user created") {
			t.Errorf("expected creation to be logged, got %s", buf.String())
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		ctx := context.Background()
		svc, client := newMemoryService(t)

		if _, err := svc.Create(ctx, dynamock.NewFields(dynamock.WithUsername("ada"), dynamock.WithEmail("ada@example.com"))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		_, err := svc.Create(ctx, dynamock.NewFields(dynamock.WithUsername("imposter"), dynamock.WithEmail("ada@example.com")))
		if !errors.Is(err, userstore.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		assert.Items(t, client.Items()).HasCount(1)
	})

	t.Run("invalid fields touch nothing", func(t *testing.T) {
		svc := userstore.NewService(userstore.NewStore(userstore.NewTable("users"), dynamock.NewMockClient(t)))

		_, err := svc.Create(context.Background(), userstore.UserFields{Username: "ada"})
		if !errors.Is(err, userstore.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("read back failure is not a not found", func(t *testing.T) {
		mock := dynamock.NewMockClient(t)
		mock.QueryFunc = func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{}, nil
		}
		mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return &dynamodb.PutItemOutput{}, nil
		}
		mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		}
		svc := userstore.NewService(userstore.NewStore(userstore.NewTable("users"), mock))

		_, err := svc.Create(context.Background(), dynamock.NewFields())
		if err == nil || errors.Is(err, userstore.ErrNotFound) || userstore.IsClientError(err) {
			t.Errorf("expected a server error, got %v", err)
		}
	})
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	svc, client := newMemoryService(t)

	users := dynamock.NewUsers(3)
	users[2].Email = users[1].Email
	if err := dynamock.NewSeedTestData(client, "users").SeedUsers(ctx, users...); err != nil {
		t.Fatalf("SeedUsers failed: %v", err)
	}

	t.Run("by id", func(t *testing.T) {
		u, err := svc.Get(ctx, users[0].UserID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if u.UserID != users[0].UserID {
			t.Errorf("expected %s, got %s", users[0].UserID, u.UserID)
		}
	})

	t.Run("by lower case id", func(t *testing.T) {
		u, err := svc.Get(ctx, strings.ToLower(users[0].UserID))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if u.UserID != users[0].UserID {
			t.Errorf("expected %s, got %s", users[0].UserID, u.UserID)
		}
	})

	t.Run("by email", func(t *testing.T) {
		u, err := svc.Get(ctx, users[0].Email)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if u.UserID != users[0].UserID {
			t.Errorf("expected %s, got %s", users[0].UserID, u.UserID)
		}
	})

	t.Run("shared email returns one and warns", func(t *testing.T) {
		var buf bytes.Buffer
		u, err := svc.Get(logContext(&buf), users[1].Email)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if u.UserID != users[1].UserID && u.UserID != users[2].UserID {
			t.Errorf("unexpected user %s", u.UserID)
		}
		if !strings.Contains(buf.String(), `"level":"warn"`) {
			t.Errorf("expected a warning, got %s", buf.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		for _, key := range []string{userstore.NewID(), "nobody@example.com"} {
			if _, err := svc.Get(ctx, key); !errors.Is(err, userstore.ErrNotFound) {
				t.Errorf("Get(%q): expected ErrNotFound, got %v", key, err)
			}
		}
	})

	t.Run("blank", func(t *testing.T) {
		if _, err := svc.Get(ctx, "  "); !errors.Is(err, userstore.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t)

	created, err := svc.Create(ctx, dynamock.NewFields(dynamock.WithUsername("ada"), dynamock.WithSummary("analyst")))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("clears omitted optionals", func(t *testing.T) {
		fields := dynamock.NewFields(dynamock.WithUsername("ada"), dynamock.WithPhoneNumber("555-0100"))
		if err := svc.Update(ctx, created.UserID, fields); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		u, err := svc.Get(ctx, created.UserID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if u.Summary.IsPresent() {
			t.Errorf("expected summary cleared, got %s", u.Summary)
		}
		if u.PhoneNumber.Or("") != "555-0100" {
			t.Errorf("expected phone number set, got %s", u.PhoneNumber)
		}
		if !u.CreatedDate.Equal(created.CreatedDate) {
			t.Errorf("expected created date unchanged, got %v", u.CreatedDate)
		}
		if !u.UpdatedDate.After(u.CreatedDate) {
			t.Errorf("expected updated date after created date, got %v", u.UpdatedDate)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		if err := svc.Update(ctx, userstore.NewID(), dynamock.NewFields()); !errors.Is(err, userstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		if err := svc.Update(ctx, "not-an-id", dynamock.NewFields()); !errors.Is(err, userstore.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for id, got %v", err)
		}
		if err := svc.Update(ctx, created.UserID, userstore.UserFields{Email: "x@example.com"}); !errors.Is(err, userstore.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for fields, got %v", err)
		}
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, client := newMemoryService(t)

	created, err := svc.Create(ctx, dynamock.NewFields())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Delete(ctx, created.UserID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	assert.Items(t, client.Items()).LacksUser(created.UserID)

	if _, err := svc.Get(ctx, created.UserID); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, created.UserID); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := svc.Delete(ctx, ""); !errors.Is(err, userstore.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, client := newMemoryService(t)

	if err := dynamock.NewSeedTestData(client, "users").SeedUsers(ctx, dynamock.NewUsers(30)...); err != nil {
		t.Fatalf("SeedUsers failed: %v", err)
	}

	t.Run("default page size", func(t *testing.T) {
		page, err := svc.List(ctx, 0, "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		assert.Users(t, page.Users).HasCount(userstore.DefaultPageSize).OrderedByID()
		if page.Cursor == "" {
			t.Error("expected a cursor")
		}

		rest, err := svc.List(ctx, 0, page.Cursor)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		assert.Users(t, rest.Users).HasCount(5)
		if rest.Users[0].UserID <= page.Users[len(page.Users)-1].UserID {
			t.Error("expected second page to start after the first")
		}
	})

	t.Run("limit bounds", func(t *testing.T) {
		for _, limit := range []int{-1, userstore.MaxPageSize + 1} {
			if _, err := svc.List(ctx, limit, ""); !errors.Is(err, userstore.ErrInvalidInput) {
				t.Errorf("limit %d: expected ErrInvalidInput, got %v", limit, err)
			}
		}
		if _, err := svc.List(ctx, userstore.MaxPageSize, ""); err != nil {
			t.Errorf("expected max page size to be accepted, got %v", err)
		}
	})

	t.Run("malformed cursor", func(t *testing.T) {
		if _, err := svc.List(ctx, 5, "zz"); !errors.Is(err, userstore.ErrMalformedToken) {
			t.Errorf("expected ErrMalformedToken, got %v", err)
		}
	})
}

func TestService_Cache(t *testing.T) {
	ctx := context.Background()
	store, client := newMemoryStore(t)
	cache := newMemoryCache()
	svc := userstore.NewService(store)
	svc.Cache = cache

	users := dynamock.NewUsers(1)
	if err := dynamock.NewSeedTestData(client, "users").SeedUsers(ctx, users...); err != nil {
		t.Fatalf("SeedUsers failed: %v", err)
	}
	id := users[0].UserID

	for range 2 {
		if _, err := svc.Get(ctx, id); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if cache.hits != 1 {
		t.Errorf("expected second read from cache, got %d hits", cache.hits)
	}

	if err := svc.Update(ctx, id, users[0].Fields()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(cache.invalidated) != 2 {
		t.Errorf("expected update and delete to invalidate, got %v", cache.invalidated)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestService_CacheRacingWrite(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, svc *userstore.Service, u userstore.User) error
		check func(t *testing.T, got *userstore.User, err error)
	}{
		{
			name: "delete",
			write: func(ctx context.Context, svc *userstore.Service, u userstore.User) error {
				return svc.Delete(ctx, u.UserID)
			},
			check: func(t *testing.T, got *userstore.User, err error) {
				if !errors.Is(err, userstore.ErrNotFound) {
					t.Errorf("expected ErrNotFound for deleted user, got %v (user %v)", err, got)
				}
			},
		},
		{
			name: "update",
			write: func(ctx context.Context, svc *userstore.Service, u userstore.User) error {
				fields := u.Fields()
				fields.Username = "countess"
				return svc.Update(ctx, u.UserID, fields)
			},
			check: func(t *testing.T, got *userstore.User, err error) {
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if got.Username != "countess" {
					t.Errorf("expected updated username, got %s", got.Username)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, client := newMemoryStore(t)
			cache := newGatedCache()
			svc := userstore.NewService(store)
			svc.Cache = cache

			users := dynamock.NewUsers(1)
			if err := dynamock.NewSeedTestData(client, "users").SeedUsers(ctx, users...); err != nil {
				t.Fatalf("SeedUsers failed: %v", err)
			}

			done := make(chan error, 1)
			go func() {
				_, err := svc.Get(ctx, users[0].UserID)
				done <- err
			}()

			<-cache.entered
			if err := tt.write(ctx, svc, users[0]); err != nil {
				close(cache.release)
				t.Fatalf("write failed: %v", err)
			}
			close(cache.release)
			if err := <-done; err != nil {
				t.Fatalf("racing Get failed: %v", err)
			}

			got, err := svc.Get(ctx, users[0].UserID)
			tt.check(t, got, err)
		})
	}
}

func TestService_StoreTimeout(t *testing.T) {
	mock := dynamock.NewMockClient(t)
	mock.GetFunc = dynamock.Block[dynamodb.GetItemInput, dynamodb.GetItemOutput]()
	store := userstore.NewStore(userstore.NewTable("users"), mock)
	store.Timeout = 10 * time.Millisecond
	svc := userstore.NewService(store)

	err := svc.Delete(context.Background(), userstore.NewID())
	if !errors.Is(err, userstore.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if mock.Calls("DeleteItem") != 0 {
		t.Error("expected no delete after a failed existence check")
	}
}
