package userstore

import (
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// QueryMarshaler can marshal input into a dynamodb query request.
type QueryMarshaler interface {
	MarshalQuery() (*dynamodb.QueryInput, error)
	// IndexName returns the index the query runs against, or "" for the table.
	IndexName(*Table) string
}

// QueryByEmail is a QueryMarshaler that finds users registered with an email
// address on the email index.
type QueryByEmail struct {
	Email string // The email address to match exactly
	Limit int    // Maximum number of items to return
}

// MarshalQuery implements QueryMarshaler for QueryByEmail.
func (q *QueryByEmail) MarshalQuery() (*dynamodb.QueryInput, error) {
	pk, _ := EmailIndexKey(q.Email, "")

	keyCondition := expression.Key(AttributeNameGSI1PK).Equal(expression.Value(pk)).
		And(expression.Key(AttributeNameGSI1SK).BeginsWith(KeyPrefixUsername))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if input.Limit, err = queryLimit(q.Limit); err != nil {
		return nil, err
	}

	return input, nil
}

// queryLimit converts a page size to the request limit. Zero means no limit.
func queryLimit(n int) (*int32, error) {
	switch {
	case n == 0:
		return nil, nil
	case n < 0 || n > math.MaxInt32:
		return nil, fmt.Errorf("%w: query limit %d out of range", ErrInvalidInput, n)
	}
	return aws.Int32(int32(n)), nil
}

// QueryList is a QueryMarshaler that pages through every user in id order on
// the list index.
type QueryList struct {
	Limit          int  // Maximum number of items to return
	StartKey       Item // Exclusive start key for pagination
	SortDescending bool // Scan direction (default: false)
}

// MarshalQuery implements QueryMarshaler for QueryList.
func (q *QueryList) MarshalQuery() (*dynamodb.QueryInput, error) {
	keyCondition := expression.Key(AttributeNameGSI2PK).Equal(expression.Value(KeyPrefixUser)).
		And(expression.Key(AttributeNameGSI2SK).BeginsWith(KeyPrefixUser))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.SortDescending),
	}

	if input.Limit, err = queryLimit(q.Limit); err != nil {
		return nil, err
	}

	if q.StartKey != nil {
		input.ExclusiveStartKey = q.StartKey
	}

	return input, nil
}

func (QueryByEmail) IndexName(t *Table) string { return t.EmailIndexName }
func (QueryList) IndexName(t *Table) string    { return t.ListIndexName }
