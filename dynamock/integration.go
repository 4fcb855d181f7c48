package dynamock

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/userstore"
)

// TableManager manages DynamoDB tables for testing, providing automatic cleanup.
type TableManager struct {
	local  *LocalDynamoDB
	tables []string
}

// NewTableManager creates a new table manager with the given DynamoDB client.
func NewTableManager(client *dynamodb.Client) *TableManager {
	return &TableManager{local: &LocalDynamoDB{Client: client}}
}

// CreateTestTable creates a user table and tracks it for cleanup.
func (tm *TableManager) CreateTestTable(ctx context.Context, tableName string) error {
	if err := tm.local.CreateUserTable(ctx, tableName); err != nil {
		return err
	}
	tm.tables = append(tm.tables, tableName)
	return nil
}

// Cleanup deletes all tables created by this manager.
func (tm *TableManager) Cleanup(ctx context.Context) error {
	for _, tableName := range tm.tables {
		if err := tm.local.DeleteTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", tableName, err)
		}
	}
	tm.tables = tm.tables[:0]
	return nil
}

// TableNames returns the names of all tables managed by this manager.
func (tm *TableManager) TableNames() []string {
	names := make([]string, len(tm.tables))
	copy(names, tm.tables)
	return names
}

// NewTestTable generates a unique table name for testing.
func NewTestTable(prefix string) string {
	name := fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	// table names allow [a-zA-Z0-9_.-]
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

// WithIsolatedTable runs fn with a freshly created user table that is deleted
// afterwards.
func WithIsolatedTable(t *testing.T, client *dynamodb.Client, fn func(tableName string)) {
	t.Helper()
	ctx := context.Background()
	tableName := NewTestTable("test-" + t.Name())

	tm := NewTableManager(client)
	defer func() {
		if err := tm.Cleanup(ctx); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", tableName, err)
		}
	}()

	if err := tm.CreateTestTable(ctx, tableName); err != nil {
		t.Fatalf("Failed to create test table %s: %v", tableName, err)
	}

	fn(tableName)
}

// WithLocalDynamoDB runs a test function with a local DynamoDB instance.
// It checks if DynamoDB Local is available and skips the test if not.
func WithLocalDynamoDB(t *testing.T, port int, fn func(local *LocalDynamoDB)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	local := NewLocalDynamoDB(port)
	if !local.IsAvailable(context.Background()) {
		t.Skipf("DynamoDB Local not available on port %d", port)
	}

	fn(local)
}

// SeedTestData is a helper for seeding users into a table.
type SeedTestData struct {
	store *userstore.Store
}

// NewSeedTestData creates a new test data seeder writing through client.
func NewSeedTestData(client userstore.DynamoDBClient, tableName string) *SeedTestData {
	return &SeedTestData{store: userstore.NewStore(userstore.NewTable(tableName), client)}
}

// SeedUsers writes users verbatim, keys and timestamps included.
func (s *SeedTestData) SeedUsers(ctx context.Context, users ...userstore.User) error {
	if err := s.store.Put(ctx, users...); err != nil {
		return fmt.Errorf("failed to seed %d users: %w", len(users), err)
	}
	return nil
}

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Port             int
	SkipIfNotRunning bool
	TablePrefix      string
	CleanupTimeout   time.Duration
}

// DefaultIntegrationTestConfig returns a default configuration for integration tests.
func DefaultIntegrationTestConfig() *IntegrationTestConfig {
	return &IntegrationTestConfig{
		Port:             DefaultLocalPort,
		SkipIfNotRunning: true,
		TablePrefix:      "integration-test",
		CleanupTimeout:   30 * time.Second,
	}
}

// RunIntegrationTest creates a user table on DynamoDB Local, runs fn against
// it, and deletes the table afterwards.
func RunIntegrationTest(t *testing.T, config *IntegrationTestConfig, fn func(local *LocalDynamoDB, tableName string)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	if config == nil {
		config = DefaultIntegrationTestConfig()
	}

	local := NewLocalDynamoDB(config.Port)
	ctx := context.Background()

	if !local.IsAvailable(ctx) {
		if config.SkipIfNotRunning {
			t.Skipf("DynamoDB Local not available on port %d", config.Port)
		} else {
			t.Fatalf("DynamoDB Local not available on port %d", config.Port)
		}
	}

	tableName := NewTestTable(config.TablePrefix)
	if err := local.CreateUserTable(ctx, tableName); err != nil {
		t.Fatalf("Failed to create test table %s: %v", tableName, err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), config.CleanupTimeout)
		defer cancel()

		if err := local.DeleteTable(cleanupCtx, tableName); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", tableName, err)
		}
	}()

	fn(local, tableName)
}

// AssertTableExists verifies that a table exists.
func AssertTableExists(t *testing.T, client userstore.TableAdminClient, tableName string) {
	t.Helper()
	_, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{
		TableName: &tableName,
	})
	if err != nil {
		t.Errorf("Table %s does not exist: %v", tableName, err)
	}
}
