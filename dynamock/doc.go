// Package dynamock provides testing utilities for the userstore package.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - In-memory DynamoDB table with secondary index support
//   - Local DynamoDB integration utilities
//   - User builders with functional options
//   - Test data seeding helpers, including JSON documents
//   - Integration test utilities with automatic cleanup
//
// # Mock Client
//
// The MockClient provides an expectation-based mock implementation where you set
// expectations for specific operations. Calls without an expectation fail the test:
//
//	mock := dynamock.NewMockClient(t)
//	mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
//		return &dynamodb.GetItemOutput{}, nil
//	}
//
//	store := userstore.NewStore(userstore.NewTable("users"), mock)
//	_, err := store.GetByID(ctx, id) // userstore.ErrNotFound
//
// Fail and Block build expectations for error paths:
//
//	mock.QueryFunc = dynamock.Fail[dynamodb.QueryInput, dynamodb.QueryOutput](err)
//	mock.GetFunc = dynamock.Block[dynamodb.GetItemInput, dynamodb.GetItemOutput]()
//
// # Memory Client
//
// MemoryClient keeps items in memory and evaluates the key conditions,
// conditions and update expressions the userstore package emits, including
// queries on the email and list indexes:
//
//	client := dynamock.NewMemoryClient()
//	svc := userstore.NewService(userstore.NewStore(userstore.NewTable("users"), client))
//
// # Builders
//
//	u := dynamock.NewUser(
//		dynamock.WithUsername("ada"),
//		dynamock.WithName("Ada", "Lovelace"),
//	)
//	users := dynamock.NewUsers(7) // ids ascending
//
// # Seeding
//
//	seeder := dynamock.NewSeedTestData(client, "users")
//	err := seeder.SeedUsers(ctx, users...)
//	n, err := seeder.SeedFromJSON(ctx, strings.NewReader(`[{"Username":"ada","Email":"ada@example.com"}]`))
//
// # Integration Tests
//
// Integration helpers run against DynamoDB Local and skip when it is not
// reachable or when tests run with -short:
//
//	dynamock.RunIntegrationTest(t, nil, func(local *dynamock.LocalDynamoDB, tableName string) {
//		store := userstore.NewStore(userstore.NewTable(tableName), local.Client)
//		// ...
//	})
package dynamock
