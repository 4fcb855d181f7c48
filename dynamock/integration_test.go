package dynamock

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nisimpson/userstore"
)

func TestRunIntegrationTest(t *testing.T) {
	RunIntegrationTest(t, nil, func(local *LocalDynamoDB, tableName string) {
		ctx := context.Background()
		AssertTableExists(t, local.Client, tableName)

		seeder := NewSeedTestData(local.Client, tableName)
		users := NewUsers(3)
		if err := seeder.SeedUsers(ctx, users...); err != nil {
			t.Fatalf("SeedUsers failed: %v", err)
		}

		store := userstore.NewStore(userstore.NewTable(tableName), local.Client)
		page, err := store.List(ctx, 2, "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(page.Users) != 2 || page.Cursor == "" {
			t.Errorf("expected a full first page with a cursor, got %d users and %q", len(page.Users), page.Cursor)
		}

		_, err = store.GetByID(ctx, userstore.NewID())
		if !errors.Is(err, userstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTableManager(t *testing.T) {
	WithLocalDynamoDB(t, DefaultLocalPort, func(local *LocalDynamoDB) {
		tm := NewTableManager(local.Client)
		ctx := context.Background()

		name := NewTestTable("manager")
		if err := tm.CreateTestTable(ctx, name); err != nil {
			t.Fatalf("CreateTestTable failed: %v", err)
		}
		if names := tm.TableNames(); len(names) != 1 || names[0] != name {
			t.Errorf("unexpected managed tables %v", names)
		}

		if err := tm.Cleanup(ctx); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if len(tm.TableNames()) != 0 {
			t.Error("expected no managed tables after cleanup")
		}
	})
}

func TestWithIsolatedTable(t *testing.T) {
	WithLocalDynamoDB(t, DefaultLocalPort, func(local *LocalDynamoDB) {
		ctx := context.Background()
		var created string

		WithIsolatedTable(t, local.Client, func(tableName string) {
			created = tableName

			tables, err := local.ListTables(ctx)
			if err != nil {
				t.Fatalf("ListTables failed: %v", err)
			}
			if !slices.Contains(tables, tableName) {
				t.Fatalf("expected %s in %v", tableName, tables)
			}

			users := NewUsers(2, WithSummary("seeded"))
			if err := NewSeedTestData(local.Client, tableName).SeedUsers(ctx, users...); err != nil {
				t.Fatalf("SeedUsers failed: %v", err)
			}

			store := userstore.NewStore(userstore.NewTable(tableName), local.Client)
			got, err := store.GetByID(ctx, users[1].UserID)
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if got.Username != users[1].Username || got.Summary.Or("") != "seeded" {
				t.Errorf("unexpected user %+v", got)
			}
		})

		tables, err := local.ListTables(ctx)
		if err != nil {
			t.Fatalf("ListTables failed: %v", err)
		}
		if slices.Contains(tables, created) {
			t.Errorf("expected %s to be deleted after the test", created)
		}
	})
}
