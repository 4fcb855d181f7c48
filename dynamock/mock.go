package dynamock

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/userstore"
)

// DynamoDBAPICall is the signature of a DynamoDB client operation.
type DynamoDBAPICall[T, U any] = func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// Ensure both clients satisfy the store's client interface.
var (
	_ userstore.DynamoDBClient   = (*MockClient)(nil)
	_ userstore.DynamoDBClient   = (*MemoryClient)(nil)
	_ userstore.TableAdminClient = (*MemoryClient)(nil)
)

// MockClient is a simple expectation-based mock for DynamoDB operations.
// Any operation without an expectation fails the test when called.
type MockClient struct {
	PutFunc            DynamoDBAPICall[dynamodb.PutItemInput, dynamodb.PutItemOutput]
	GetFunc            DynamoDBAPICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	QueryFunc          DynamoDBAPICall[dynamodb.QueryInput, dynamodb.QueryOutput]
	BatchWriteItemFunc DynamoDBAPICall[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput]
	DeleteFunc         DynamoDBAPICall[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput]
	UpdateFunc         DynamoDBAPICall[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput]

	mu    sync.Mutex
	calls map[string]int
}

// NewMockClient creates a new mock DynamoDB client with no expectations.
func NewMockClient(t *testing.T) *MockClient {
	return &MockClient{
		PutFunc:            unexpected[dynamodb.PutItemInput, dynamodb.PutItemOutput](t, "PutItem"),
		GetFunc:            unexpected[dynamodb.GetItemInput, dynamodb.GetItemOutput](t, "GetItem"),
		QueryFunc:          unexpected[dynamodb.QueryInput, dynamodb.QueryOutput](t, "Query"),
		BatchWriteItemFunc: unexpected[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput](t, "BatchWriteItem"),
		DeleteFunc:         unexpected[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput](t, "DeleteItem"),
		UpdateFunc:         unexpected[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput](t, "UpdateItem"),
		calls:              make(map[string]int),
	}
}

func unexpected[T, U any](t *testing.T, op string) DynamoDBAPICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Fatalf("unexpected call to %s", op)
		return nil, nil
	}
}

// Fail returns an expectation that always fails with err.
func Fail[T, U any](err error) DynamoDBAPICall[T, U] {
	return func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error) {
		return nil, err
	}
}

// Block returns an expectation that waits for the request context to end and
// fails with its error.
func Block[T, U any]() DynamoDBAPICall[T, U] {
	return func(ctx context.Context, _ *T, _ ...func(*dynamodb.Options)) (*U, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Calls returns how many times op (e.g. "GetItem") was invoked.
func (m *MockClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockClient) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// PutItem invokes PutFunc.
func (m *MockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.record("PutItem")
	return m.PutFunc(ctx, params, optFns...)
}

// GetItem invokes GetFunc.
func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.record("GetItem")
	return m.GetFunc(ctx, params, optFns...)
}

// UpdateItem invokes UpdateFunc.
func (m *MockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.record("UpdateItem")
	return m.UpdateFunc(ctx, params, optFns...)
}

// DeleteItem invokes DeleteFunc.
func (m *MockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.record("DeleteItem")
	return m.DeleteFunc(ctx, params, optFns...)
}

// BatchWriteItem invokes BatchWriteItemFunc.
func (m *MockClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.record("BatchWriteItem")
	return m.BatchWriteItemFunc(ctx, params, optFns...)
}

// Query invokes QueryFunc.
func (m *MockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.record("Query")
	return m.QueryFunc(ctx, params, optFns...)
}
