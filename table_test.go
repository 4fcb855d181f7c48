package userstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Mock table admin client for testing
type mockAdminClient struct {
	exists      bool
	describeErr error
	createErr   error
	creates     int
}

func (m *mockAdminClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	if !m.exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func (m *mockAdminClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.creates++
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func TestTable_MarshalPut(t *testing.T) {
	table := NewTable("users")
	u := testUser()

	input, err := table.MarshalPut(u)
	if err != nil {
		t.Fatalf("MarshalPut failed: %v", err)
	}

	if aws.ToString(input.TableName) != "users" {
		t.Errorf("expected table users, got %s", aws.ToString(input.TableName))
	}
	if !strings.Contains(aws.ToString(input.ConditionExpression), "attribute_not_exists") {
		t.Errorf("expected create-only condition, got %s", aws.ToString(input.ConditionExpression))
	}
	if got := expressionNames(input.ExpressionAttributeNames); !slices.Equal(got, []string{"PK"}) {
		t.Errorf("unexpected condition names %v", got)
	}
	if _, ok := input.Item[AttributeNameGSI1PK]; !ok {
		t.Error("expected derived index keys in item")
	}
}

func TestTable_MarshalBatch(t *testing.T) {
	table := NewTable("users")

	users := make([]User, 60)
	for i := range users {
		users[i] = testUser()
		users[i].UserID = NewID()
	}

	batches, err := table.MarshalBatch(users)
	if err != nil {
		t.Fatalf("MarshalBatch failed: %v", err)
	}

	sizes := make([]int, 0, len(batches))
	for _, batch := range batches {
		sizes = append(sizes, len(batch.RequestItems["users"]))
	}
	if !slices.Equal(sizes, []int{25, 25, 10}) {
		t.Errorf("expected batches of 25, 25, 10, got %v", sizes)
	}

	if batches, _ := table.MarshalBatch(nil); len(batches) != 0 {
		t.Errorf("expected no batches for no users, got %d", len(batches))
	}
}

func TestTable_MarshalGet(t *testing.T) {
	table := NewTable("users")
	input := table.MarshalGet("01J0000000000000000000000A")

	if !aws.ToBool(input.ConsistentRead) {
		t.Error("expected consistent read")
	}
	if pk, _ := stringAttribute(input.Key, AttributeNamePK); pk != "USER#01J0000000000000000000000A" {
		t.Errorf("unexpected partition key %s", pk)
	}
	if len(input.Key) != 2 {
		t.Errorf("expected 2 key attributes, got %d", len(input.Key))
	}
}

func TestTable_MarshalDelete(t *testing.T) {
	table := NewTable("users")
	input := table.MarshalDelete("01J0000000000000000000000A")

	if input.ConditionExpression != nil {
		t.Error("expected unconditional delete")
	}
	if sk, _ := stringAttribute(input.Key, AttributeNameSK); sk != "USER#01J0000000000000000000000A" {
		t.Errorf("unexpected sort key %s", sk)
	}
}

func TestTable_MarshalUpdate(t *testing.T) {
	table := NewTable("users")
	fields := testUser().Fields()
	fields.Username = "countess"
	updated := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	input, err := table.MarshalUpdate("01J0000000000000000000000A", fields, updated)
	if err != nil {
		t.Fatalf("MarshalUpdate failed: %v", err)
	}

	update := aws.ToString(input.UpdateExpression)
	if !strings.Contains(update, "SET") || !strings.Contains(update, "REMOVE") {
		t.Errorf("expected SET and REMOVE clauses, got %s", update)
	}
	if !strings.Contains(aws.ToString(input.ConditionExpression), "attribute_exists") {
		t.Errorf("expected existence condition, got %s", aws.ToString(input.ConditionExpression))
	}

	names := expressionNames(input.ExpressionAttributeNames)
	for _, name := range []string{
		AttributeNamePK, AttributeNameUsername, AttributeNameEmail,
		AttributeNameGSI1PK, AttributeNameGSI1SK, AttributeNameGSI2PK, AttributeNameGSI2SK,
		AttributeNameUpdatedDate, AttributeNameFirstName, AttributeNameLastName,
		AttributeNameSummary, AttributeNameProfilePhoto, AttributeNamePhoneNumber,
	} {
		if !slices.Contains(names, name) {
			t.Errorf("expected %s to be referenced, got %v", name, names)
		}
	}
	if slices.Contains(names, AttributeNameCreatedDate) || slices.Contains(names, AttributeNameUserID) {
		t.Errorf("expected immutable attributes to be untouched, got %v", names)
	}

	values := expressionStrings(input.ExpressionAttributeValues)
	for _, want := range []string{"countess", "USERNAME#countess", "EMAIL#ada@example.com", "2024-02-01T00:00:00Z", "Ada"} {
		if !slices.Contains(values, want) {
			t.Errorf("expected value %s, got %v", want, values)
		}
	}
}

func TestTable_MarshalCreateTable(t *testing.T) {
	table := NewTable("users")
	input := table.MarshalCreateTable()

	if input.BillingMode != types.BillingModePayPerRequest {
		t.Errorf("expected on-demand billing, got %s", input.BillingMode)
	}
	if len(input.AttributeDefinitions) != 6 {
		t.Errorf("expected 6 attribute definitions, got %d", len(input.AttributeDefinitions))
	}

	var indexes []string
	for _, gsi := range input.GlobalSecondaryIndexes {
		indexes = append(indexes, aws.ToString(gsi.IndexName))
		if gsi.Projection.ProjectionType != types.ProjectionTypeAll {
			t.Errorf("expected full projection on %s", aws.ToString(gsi.IndexName))
		}
	}
	if !slices.Equal(indexes, []string{"GSI1", "GSI2"}) {
		t.Errorf("unexpected indexes %v", indexes)
	}
}

func TestTable_EnsureTable(t *testing.T) {
	ctx := context.Background()
	table := NewTable("users")

	t.Run("creates missing table", func(t *testing.T) {
		client := &mockAdminClient{}
		if err := table.EnsureTable(ctx, client, 5*time.Second); err != nil {
			t.Fatalf("EnsureTable failed: %v", err)
		}
		if client.creates != 1 {
			t.Errorf("expected 1 create, got %d", client.creates)
		}
	})

	t.Run("existing table", func(t *testing.T) {
		client := &mockAdminClient{exists: true}
		if err := table.EnsureTable(ctx, client, 5*time.Second); err != nil {
			t.Fatalf("EnsureTable failed: %v", err)
		}
		if client.creates != 0 {
			t.Errorf("expected no create, got %d", client.creates)
		}
	})

	t.Run("describe failure", func(t *testing.T) {
		boom := errors.New("boom")
		client := &mockAdminClient{describeErr: boom}
		if err := table.EnsureTable(ctx, client, 5*time.Second); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		boom := errors.New("boom")
		client := &mockAdminClient{createErr: boom}
		if err := table.EnsureTable(ctx, client, 5*time.Second); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}
