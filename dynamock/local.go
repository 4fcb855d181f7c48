package dynamock

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/userstore"
)

// DefaultLocalPort is the default port for DynamoDB Local.
const DefaultLocalPort = 8000

// LocalDynamoDB represents a connection to a local DynamoDB instance.
type LocalDynamoDB struct {
	Client   *dynamodb.Client
	Endpoint string
	Port     int
}

// NewLocalClient creates a DynamoDB client configured to connect to a local DynamoDB instance.
// This is useful for integration testing with DynamoDB Local.
//
// Example usage:
//
//	client := dynamock.NewLocalClient(8000)
//	// Use client with your tests
func NewLocalClient(port int) *dynamodb.Client {
	cfg := aws.Config{
		Region: "us-east-1", // DynamoDB Local doesn't care about region
	}
	return NewLocalClientFromConfig(cfg, port)
}

// NewLocalClientFromConfig creates a local DynamoDB client from cfg, pointing
// it at localhost with dummy static credentials.
func NewLocalClientFromConfig(cfg aws.Config, port int) *dynamodb.Client {
	endpoint := fmt.Sprintf("http://localhost:%d", port)
	cfg.Credentials = credentials.NewStaticCredentialsProvider("local", "local", "")

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// NewLocalDynamoDB creates a LocalDynamoDB instance with the specified port.
func NewLocalDynamoDB(port int) *LocalDynamoDB {
	return &LocalDynamoDB{
		Client:   NewLocalClient(port),
		Endpoint: fmt.Sprintf("http://localhost:%d", port),
		Port:     port,
	}
}

// NewDefaultLocalDynamoDB creates a LocalDynamoDB instance using the default port (8000).
func NewDefaultLocalDynamoDB() *LocalDynamoDB {
	return NewLocalDynamoDB(DefaultLocalPort)
}

// IsAvailable checks if DynamoDB Local is running on the configured port.
func (l *LocalDynamoDB) IsAvailable(ctx context.Context) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", l.Port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()

	// Verify it's actually DynamoDB
	_, err = l.ListTables(ctx)
	return err == nil
}

// WaitForAvailable waits for DynamoDB Local to become available.
// Returns an error if it doesn't become available within the timeout.
func (l *LocalDynamoDB) WaitForAvailable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if l.IsAvailable(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("DynamoDB Local not available at %s after %v", l.Endpoint, timeout)
}

// CreateUserTable creates a table with the user schema and both secondary
// indexes and waits for it to become active.
func (l *LocalDynamoDB) CreateUserTable(ctx context.Context, tableName string) error {
	if err := userstore.NewTable(tableName).EnsureTable(ctx, l.Client, 30*time.Second); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	return nil
}

// DeleteTable deletes a table and waits until it is gone.
func (l *LocalDynamoDB) DeleteTable(ctx context.Context, tableName string) error {
	_, err := l.Client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(l.Client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 30*time.Second); err != nil {
		return fmt.Errorf("table %s was not deleted: %w", tableName, err)
	}
	return nil
}

// ListTables returns all table names in the local DynamoDB instance.
func (l *LocalDynamoDB) ListTables(ctx context.Context) ([]string, error) {
	output, err := l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	return output.TableNames, nil
}
