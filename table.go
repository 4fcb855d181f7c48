package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25
)

func keyItem(id string) Item {
	pk, sk := UserKey(id)
	return Item{
		AttributeNamePK: &types.AttributeValueMemberS{Value: pk},
		AttributeNameSK: &types.AttributeValueMemberS{Value: sk},
	}
}

// MarshalPut marshals u into a put item request that only succeeds if no item
// with the same key exists.
func (t *Table) MarshalPut(u User) (*dynamodb.PutItemInput, error) {
	item, err := MarshalUser(u)
	if err != nil {
		return nil, err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(AttributeNamePK))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &dynamodb.PutItemInput{
		TableName:                aws.String(t.TableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}, nil
}

// MarshalBatch marshals users into multiple batch write put requests. Since there is a
// limit on how many requests can be contained in a single input, the requests are chunked
// in sizes of 25 or less.
func (t *Table) MarshalBatch(users []User) ([]*dynamodb.BatchWriteItemInput, error) {
	var batches []*dynamodb.BatchWriteItemInput

	for i := 0; i < len(users); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(users))

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for _, u := range users[i:end] {
			item, err := MarshalUser(u)
			if err != nil {
				return nil, err
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		batches = append(batches, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				t.TableName: writeRequests,
			},
		})
	}

	return batches, nil
}

// MarshalGet marshals a strongly consistent get item request for the user id.
func (t *Table) MarshalGet(id string) *dynamodb.GetItemInput {
	return &dynamodb.GetItemInput{
		TableName:      aws.String(t.TableName),
		Key:            keyItem(id),
		ConsistentRead: aws.Bool(true),
	}
}

// MarshalDelete marshals a delete item request for the user id.
func (t *Table) MarshalDelete(id string) *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName: aws.String(t.TableName),
		Key:       keyItem(id),
	}
}

// MarshalUpdate marshals a wholesale replacement of the user's attributes.
// Required fields, present optional fields and every derived key are set;
// optional fields that are absent or null are removed. The request fails
// with a conditional check error if the user does not exist.
func (t *Table) MarshalUpdate(id string, fields UserFields, updated time.Time) (*dynamodb.UpdateItemInput, error) {
	gsi1pk, gsi1sk := EmailIndexKey(fields.Email, fields.Username)
	gsi2pk, gsi2sk := ListIndexKey(id)

	update := expression.
		Set(expression.Name(AttributeNameUsername), expression.Value(fields.Username)).
		Set(expression.Name(AttributeNameEmail), expression.Value(fields.Email)).
		Set(expression.Name(AttributeNameGSI1PK), expression.Value(gsi1pk)).
		Set(expression.Name(AttributeNameGSI1SK), expression.Value(gsi1sk)).
		Set(expression.Name(AttributeNameGSI2PK), expression.Value(gsi2pk)).
		Set(expression.Name(AttributeNameGSI2SK), expression.Value(gsi2sk)).
		Set(expression.Name(AttributeNameUpdatedDate), expression.Value(updated))

	for _, field := range fields.optionals() {
		if v, ok := field.value.Get(); ok {
			update = update.Set(expression.Name(field.name), expression.Value(v))
		} else {
			update = update.Remove(expression.Name(field.name))
		}
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(AttributeNamePK))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.TableName),
		Key:                       keyItem(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// MarshalQuery marshals the input into a query item request
func (t *Table) MarshalQuery(in QueryMarshaler) (*dynamodb.QueryInput, error) {
	input, err := in.MarshalQuery()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	input.TableName = aws.String(t.TableName)

	if name := in.IndexName(t); name != "" {
		input.IndexName = aws.String(name)
	}

	return input, nil
}

// MarshalCreateTable marshals a create table request for the user table and
// both of its secondary indexes, billed on demand.
func (t *Table) MarshalCreateTable() *dynamodb.CreateTableInput {
	attr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		}
	}
	keySchema := func(hashKey, rangeKey string) []types.KeySchemaElement {
		return []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange},
		}
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(t.TableName),
		AttributeDefinitions: []types.AttributeDefinition{
			attr(AttributeNamePK),
			attr(AttributeNameSK),
			attr(AttributeNameGSI1PK),
			attr(AttributeNameGSI1SK),
			attr(AttributeNameGSI2PK),
			attr(AttributeNameGSI2SK),
		},
		KeySchema: keySchema(AttributeNamePK, AttributeNameSK),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName:  aws.String(t.EmailIndexName),
				KeySchema:  keySchema(AttributeNameGSI1PK, AttributeNameGSI1SK),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName:  aws.String(t.ListIndexName),
				KeySchema:  keySchema(AttributeNameGSI2PK, AttributeNameGSI2SK),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// EnsureTable creates the user table if it does not exist and waits up to
// maxWait for it to become active.
func (t *Table) EnsureTable(ctx context.Context, client TableAdminClient, maxWait time.Duration) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(t.TableName),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", t.TableName, err)
	}

	if _, err := client.CreateTable(ctx, t.MarshalCreateTable()); err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("failed to create table %s: %w", t.TableName, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.TableName)}, maxWait); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", t.TableName, err)
	}
	return nil
}
