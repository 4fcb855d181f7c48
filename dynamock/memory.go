package dynamock

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/userstore"
)

type keySchema struct {
	hashKey  string
	rangeKey string
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithIndex registers a global secondary index. Items lacking either key
// attribute are left out of the index.
func WithIndex(name, hashKey, rangeKey string) MemoryOption {
	return func(m *MemoryClient) {
		m.indexes[name] = keySchema{hashKey: hashKey, rangeKey: rangeKey}
	}
}

// MemoryClient is an in-memory DynamoDB table for unit tests. It understands
// the requests the userstore package builds: key conditions made of "=" and
// begins_with, attribute_exists and attribute_not_exists conditions, and
// SET and REMOVE update clauses. Like DynamoDB, a query that stops at its
// limit reports a LastEvaluatedKey even when no items remain.
type MemoryClient struct {
	mu      sync.Mutex
	table   keySchema
	indexes map[string]keySchema
	items   map[string]userstore.Item
	created bool
}

// NewMemoryClient creates an empty table keyed on PK and SK with the email
// and list indexes of [userstore.NewTable].
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	defaults := userstore.NewTable("")
	m := &MemoryClient{
		table:   keySchema{hashKey: userstore.AttributeNamePK, rangeKey: userstore.AttributeNameSK},
		indexes: make(map[string]keySchema),
		items:   make(map[string]userstore.Item),
		created: true,
	}
	WithIndex(defaults.EmailIndexName, userstore.AttributeNameGSI1PK, userstore.AttributeNameGSI1SK)(m)
	WithIndex(defaults.ListIndexName, userstore.AttributeNameGSI2PK, userstore.AttributeNameGSI2SK)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithoutTable starts the client with no table, so DescribeTable reports it
// missing until CreateTable is called.
func WithoutTable() MemoryOption {
	return func(m *MemoryClient) { m.created = false }
}

// Len returns the number of stored items.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Items returns a copy of every stored item ordered by table key.
func (m *MemoryClient) Items() []userstore.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	items := make([]userstore.Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, cloneItem(m.items[k]))
	}
	return items
}

// Item returns a copy of the item stored under pk and sk, or nil.
func (m *MemoryClient) Item(pk, sk string) userstore.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[pk+"\x00"+sk]; ok {
		return cloneItem(item)
	}
	return nil
}

// SetItem stores item verbatim, bypassing conditions. It is meant for
// seeding malformed items.
func (m *MemoryClient) SetItem(item userstore.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := m.itemKey(item)
	if err != nil {
		return err
	}
	m.items[key] = cloneItem(item)
	return nil
}

// PutItem stores an item in the table.
func (m *MemoryClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.itemKey(params.Item)
	if err != nil {
		return nil, err
	}

	existing := m.items[key]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, existing); err != nil {
		return nil, err
	}

	m.items[key] = cloneItem(params.Item)

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && existing != nil {
		out.Attributes = cloneItem(existing)
	}
	return out, nil
}

// GetItem retrieves an item from the table.
func (m *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.itemKey(params.Key)
	if err != nil {
		return nil, err
	}

	if item, ok := m.items[key]; ok {
		return &dynamodb.GetItemOutput{Item: cloneItem(item)}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

// UpdateItem applies SET and REMOVE clauses to an item, creating it when
// missing and no condition prevents it.
func (m *MemoryClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.itemKey(params.Key)
	if err != nil {
		return nil, err
	}

	existing := m.items[key]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, existing); err != nil {
		return nil, err
	}

	updated := cloneItem(existing)
	if updated == nil {
		updated = cloneItem(params.Key)
	}

	if err := applyUpdate(updated, aws.ToString(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	m.items[key] = updated

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = cloneItem(updated)
	case types.ReturnValueAllOld:
		out.Attributes = cloneItem(existing)
	}
	return out, nil
}

// DeleteItem removes an item from the table. Deleting a missing item succeeds.
func (m *MemoryClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.itemKey(params.Key)
	if err != nil {
		return nil, err
	}

	existing := m.items[key]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, existing); err != nil {
		return nil, err
	}

	delete(m.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// BatchWriteItem processes put and delete requests. Every request is processed.
func (m *MemoryClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, requests := range params.RequestItems {
		if len(requests) > userstore.MaxBatchSize {
			return nil, fmt.Errorf("dynamock: batch of %d exceeds %d requests", len(requests), userstore.MaxBatchSize)
		}
		for _, request := range requests {
			switch {
			case request.PutRequest != nil:
				key, err := m.itemKey(request.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				m.items[key] = cloneItem(request.PutRequest.Item)
			case request.DeleteRequest != nil:
				key, err := m.itemKey(request.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(m.items, key)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// Query performs a key condition query against the table or one of its indexes.
func (m *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	schema := m.table
	if name := aws.ToString(params.IndexName); name != "" {
		idx, ok := m.indexes[name]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("index not found: " + name)}
		}
		schema = idx
	}

	cond, err := parseKeyCondition(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, schema)
	if err != nil {
		return nil, err
	}

	var matches []userstore.Item
	for _, item := range m.items {
		if cond.matches(item, schema) {
			matches = append(matches, item)
		}
	}

	slices.SortFunc(matches, func(a, b userstore.Item) int {
		return slices.Compare(m.sortTuple(a, schema), m.sortTuple(b, schema))
	})
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		slices.Reverse(matches)
	}

	if len(params.ExclusiveStartKey) > 0 {
		start := m.sortTuple(params.ExclusiveStartKey, schema)
		forward := params.ScanIndexForward == nil || *params.ScanIndexForward
		i := 0
		for ; i < len(matches); i++ {
			c := slices.Compare(m.sortTuple(matches[i], schema), start)
			if (forward && c > 0) || (!forward && c < 0) {
				break
			}
		}
		matches = matches[i:]
	}

	out := &dynamodb.QueryOutput{}
	limit := int(aws.ToInt32(params.Limit))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	for _, item := range matches {
		out.Items = append(out.Items, cloneItem(item))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count

	if limit > 0 && len(out.Items) == limit {
		last := out.Items[len(out.Items)-1]
		lastKey := userstore.Item{}
		for _, attr := range []string{m.table.hashKey, m.table.rangeKey, schema.hashKey, schema.rangeKey} {
			lastKey[attr] = last[attr]
		}
		out.LastEvaluatedKey = lastKey
	}

	return out, nil
}

// DescribeTable reports the table as active once it exists.
func (m *MemoryClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(params.TableName))}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
			ItemCount:   aws.Int64(int64(len(m.items))),
		},
	}, nil
}

// CreateTable marks the table as existing. The schema in params is ignored.
func (m *MemoryClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created {
		return nil, &types.ResourceInUseException{Message: aws.String("table already exists: " + aws.ToString(params.TableName))}
	}
	m.created = true
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusCreating,
		},
	}, nil
}

func (m *MemoryClient) itemKey(item userstore.Item) (string, error) {
	pk, ok := stringValue(item[m.table.hashKey])
	if !ok {
		return "", fmt.Errorf("dynamock: missing string key attribute %s", m.table.hashKey)
	}
	sk, ok := stringValue(item[m.table.rangeKey])
	if !ok {
		return "", fmt.Errorf("dynamock: missing string key attribute %s", m.table.rangeKey)
	}
	return pk + "\x00" + sk, nil
}

// sortTuple orders items by the schema's range key with the table key as a
// tie breaker, so index pages are deterministic.
func (m *MemoryClient) sortTuple(item userstore.Item, schema keySchema) []string {
	rk, _ := stringValue(item[schema.rangeKey])
	pk, _ := stringValue(item[m.table.hashKey])
	sk, _ := stringValue(item[m.table.rangeKey])
	return []string{rk, pk, sk}
}

var (
	eqPattern         = regexp.MustCompile(`^\(?\s*(#?\w+)\s*=\s*(:\w+)\s*\)?$`)
	beginsWithPattern = regexp.MustCompile(`^\(?\s*begins_with\s*\(\s*(#?\w+)\s*,\s*(:\w+)\s*\)\s*\)?$`)
	conditionPattern  = regexp.MustCompile(`^\(?\s*(attribute_exists|attribute_not_exists)\s*\(\s*(#?\w+)\s*\)\s*\)?$`)
	clausePattern     = regexp.MustCompile(`(?:^|\s)(SET|REMOVE|ADD|DELETE)\s`)
)

type keyCondition struct {
	hashValue  string
	rangeOp    string // "", "=" or "begins_with"
	rangeValue string
}

func (c keyCondition) matches(item userstore.Item, schema keySchema) bool {
	hv, ok := stringValue(item[schema.hashKey])
	if !ok || hv != c.hashValue {
		return false
	}
	rv, ok := stringValue(item[schema.rangeKey])
	if !ok {
		return false
	}
	switch c.rangeOp {
	case "=":
		return rv == c.rangeValue
	case "begins_with":
		return strings.HasPrefix(rv, c.rangeValue)
	default:
		return true
	}
}

func parseKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue, schema keySchema) (keyCondition, error) {
	var (
		cond    keyCondition
		hashSet bool
	)

	for _, part := range strings.Split(expr, " AND ") {
		part = strings.TrimSpace(part)

		op, nameToken, valueToken := "", "", ""
		if m := beginsWithPattern.FindStringSubmatch(part); m != nil {
			op, nameToken, valueToken = "begins_with", m[1], m[2]
		} else if m := eqPattern.FindStringSubmatch(part); m != nil {
			op, nameToken, valueToken = "=", m[1], m[2]
		} else {
			return cond, fmt.Errorf("dynamock: unsupported key condition %q", part)
		}

		name := resolveName(nameToken, names)
		value, ok := stringValue(values[valueToken])
		if !ok {
			return cond, fmt.Errorf("dynamock: key condition value %s is not a string", valueToken)
		}

		switch {
		case name == schema.hashKey && op == "=":
			cond.hashValue, hashSet = value, true
		case name == schema.rangeKey:
			cond.rangeOp, cond.rangeValue = op, value
		default:
			return cond, fmt.Errorf("dynamock: key condition on non-key attribute %s", name)
		}
	}

	if !hashSet {
		return cond, fmt.Errorf("dynamock: key condition %q has no hash key equality", expr)
	}
	return cond, nil
}

func checkCondition(expr *string, names map[string]string, existing userstore.Item) error {
	if aws.ToString(expr) == "" {
		return nil
	}

	m := conditionPattern.FindStringSubmatch(strings.TrimSpace(*expr))
	if m == nil {
		return fmt.Errorf("dynamock: unsupported condition %q", *expr)
	}

	_, exists := existing[resolveName(m[2], names)]
	if (m[1] == "attribute_exists") != exists {
		return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	return nil
}

func applyUpdate(item userstore.Item, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	locs := clausePattern.FindAllStringSubmatchIndex(expr, -1)
	if len(locs) == 0 {
		return fmt.Errorf("dynamock: unsupported update %q", expr)
	}

	for i, loc := range locs {
		keyword := expr[loc[2]:loc[3]]
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := expr[loc[1]:end]

		for _, action := range strings.Split(body, ",") {
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			switch keyword {
			case "SET":
				lhs, rhs, ok := strings.Cut(action, "=")
				if !ok {
					return fmt.Errorf("dynamock: unsupported SET action %q", action)
				}
				value, ok := values[strings.TrimSpace(rhs)]
				if !ok {
					return fmt.Errorf("dynamock: unknown value %s", strings.TrimSpace(rhs))
				}
				item[resolveName(strings.TrimSpace(lhs), names)] = value
			case "REMOVE":
				delete(item, resolveName(action, names))
			default:
				return fmt.Errorf("dynamock: unsupported update clause %s", keyword)
			}
		}
	}
	return nil
}

func resolveName(token string, names map[string]string) string {
	if name, ok := names[token]; ok {
		return name
	}
	return token
}

func stringValue(av types.AttributeValue) (string, bool) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func cloneItem(item userstore.Item) userstore.Item {
	if item == nil {
		return nil
	}
	out := make(userstore.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
