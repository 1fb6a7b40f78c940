// Package dynamotest provides an in-memory DynamoDB that understands the
// expressions the stores in this module issue. It is meant for tests only.
//
// Supported:
//   - condition / filter clauses joined by " AND ": attribute_exists(a),
//     attribute_not_exists(a), a = :v, a <> :v
//   - update expressions of the form "SET a = :x, #b = :y"
//   - Query on the table key or a GSI with "a = :v" key conditions
//   - TransactWriteItems with per-item cancellation reasons
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table describes a fake table: its partition key attribute and its GSIs
// (index name -> partition attribute).
type Table struct {
	Name    string
	Key     string
	Indexes map[string]string
}

type table struct {
	key     string
	indexes map[string]string
	items   map[string]map[string]types.AttributeValue
}

// Fake is a goroutine-safe in-memory DynamoDB.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	failures map[string]error
	calls    map[string]int
}

// New returns a Fake with the given tables created.
func New(tables ...Table) *Fake {
	f := &Fake{
		tables:   map[string]*table{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
	for _, t := range tables {
		f.tables[t.Name] = &table{
			key:     t.Key,
			indexes: t.Indexes,
			items:   map[string]map[string]types.AttributeValue{},
		}
	}
	return f
}

// FailOn makes every subsequent call of op (e.g. "PutItem") return err.
// A nil err clears the failure.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	item, ok := t.items[key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return 0
	}
	return len(t.items)
}

// Seed stores item directly, bypassing conditions.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(tableName)
	if err != nil {
		return err
	}
	pk, err := keyOf(t, item)
	if err != nil {
		return err
	}
	t.items[pk] = copyItem(item)
	return nil
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	return f.failures[op]
}

func (f *Fake) table(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + name)}
	}
	return t, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	pk, err := keyOf(t, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	pk, err := keyOf(t, params.Item)
	if err != nil {
		return nil, err
	}
	ec := exprContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	ok, err := ec.eval(sdkaws.ToString(params.ConditionExpression), t.items[pk])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailure()
	}
	t.items[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	pk, err := keyOf(t, params.Key)
	if err != nil {
		return nil, err
	}
	ec := exprContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	current := t.items[pk]
	ok, err := ec.eval(sdkaws.ToString(params.ConditionExpression), current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailure()
	}
	next := copyItem(current)
	if next == nil {
		next = copyItem(params.Key)
	}
	if err := ec.applySet(sdkaws.ToString(params.UpdateExpression), next); err != nil {
		return nil, err
	}
	t.items[pk] = next
	return &dyn.UpdateItemOutput{Attributes: copyItem(next)}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	pk, err := keyOf(t, params.Key)
	if err != nil {
		return nil, err
	}
	ec := exprContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	ok, err := ec.eval(sdkaws.ToString(params.ConditionExpression), t.items[pk])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionalFailure()
	}
	old := t.items[pk]
	delete(t.items, pk)
	return &dyn.DeleteItemOutput{Attributes: old}, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	attr := t.key
	if params.IndexName != nil {
		a, ok := t.indexes[*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("dynamotest: unknown index %s", *params.IndexName)
		}
		attr = a
	}
	ec := exprContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	keyCond := strings.Fields(sdkaws.ToString(params.KeyConditionExpression))
	if len(keyCond) != 3 || keyCond[1] != "=" {
		return nil, fmt.Errorf("dynamotest: unsupported key condition %q", sdkaws.ToString(params.KeyConditionExpression))
	}
	if ec.name(keyCond[0]) != attr {
		return nil, fmt.Errorf("dynamotest: key condition on %s, index is on %s", ec.name(keyCond[0]), attr)
	}
	want, ok := ec.values[keyCond[2]]
	if !ok {
		return nil, fmt.Errorf("dynamotest: missing value %s", keyCond[2])
	}

	var out []map[string]types.AttributeValue
	for _, pk := range sortedKeys(t.items) {
		item := t.items[pk]
		if !reflect.DeepEqual(item[attr], want) {
			continue
		}
		ok, err := ec.eval(sdkaws.ToString(params.FilterExpression), item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyItem(item))
		}
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	ec := exprContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	var out []map[string]types.AttributeValue
	for _, pk := range sortedKeys(t.items) {
		ok, err := ec.eval(sdkaws.ToString(params.FilterExpression), t.items[pk])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyItem(t.items[pk]))
		}
	}
	return &dyn.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

type pendingWrite struct {
	t      *table
	pk     string
	apply  func(t *table)
	failed bool
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(params.TransactItems) == 0 || len(params.TransactItems) > 100 {
		return nil, errors.New("dynamotest: transaction must have 1..100 items")
	}

	writes := make([]pendingWrite, 0, len(params.TransactItems))
	anyFailed := false
	for _, it := range params.TransactItems {
		w, err := f.prepare(it)
		if err != nil {
			return nil, err
		}
		if w.failed {
			anyFailed = true
		}
		writes = append(writes, w)
	}

	if anyFailed {
		reasons := make([]types.CancellationReason, len(writes))
		codes := make([]string, len(writes))
		for i, w := range writes {
			code := "None"
			if w.failed {
				code = "ConditionalCheckFailed"
			}
			codes[i] = code
			reasons[i] = types.CancellationReason{Code: sdkaws.String(code)}
		}
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String(fmt.Sprintf("Transaction cancelled, please refer cancellation reasons for specific reasons [%s]", strings.Join(codes, ", "))),
			CancellationReasons: reasons,
		}
	}

	for _, w := range writes {
		if w.apply != nil {
			w.apply(w.t)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) prepare(it types.TransactWriteItem) (pendingWrite, error) {
	switch {
	case it.Put != nil:
		p := it.Put
		t, err := f.table(sdkaws.ToString(p.TableName))
		if err != nil {
			return pendingWrite{}, err
		}
		pk, err := keyOf(t, p.Item)
		if err != nil {
			return pendingWrite{}, err
		}
		ec := exprContext{names: p.ExpressionAttributeNames, values: p.ExpressionAttributeValues}
		ok, err := ec.eval(sdkaws.ToString(p.ConditionExpression), t.items[pk])
		if err != nil {
			return pendingWrite{}, err
		}
		item := copyItem(p.Item)
		return pendingWrite{t: t, pk: pk, failed: !ok, apply: func(t *table) { t.items[pk] = item }}, nil

	case it.Update != nil:
		u := it.Update
		t, err := f.table(sdkaws.ToString(u.TableName))
		if err != nil {
			return pendingWrite{}, err
		}
		pk, err := keyOf(t, u.Key)
		if err != nil {
			return pendingWrite{}, err
		}
		ec := exprContext{names: u.ExpressionAttributeNames, values: u.ExpressionAttributeValues}
		ok, err := ec.eval(sdkaws.ToString(u.ConditionExpression), t.items[pk])
		if err != nil {
			return pendingWrite{}, err
		}
		next := copyItem(t.items[pk])
		if next == nil {
			next = copyItem(u.Key)
		}
		if err := ec.applySet(sdkaws.ToString(u.UpdateExpression), next); err != nil {
			return pendingWrite{}, err
		}
		return pendingWrite{t: t, pk: pk, failed: !ok, apply: func(t *table) { t.items[pk] = next }}, nil

	case it.Delete != nil:
		d := it.Delete
		t, err := f.table(sdkaws.ToString(d.TableName))
		if err != nil {
			return pendingWrite{}, err
		}
		pk, err := keyOf(t, d.Key)
		if err != nil {
			return pendingWrite{}, err
		}
		ec := exprContext{names: d.ExpressionAttributeNames, values: d.ExpressionAttributeValues}
		ok, err := ec.eval(sdkaws.ToString(d.ConditionExpression), t.items[pk])
		if err != nil {
			return pendingWrite{}, err
		}
		return pendingWrite{t: t, pk: pk, failed: !ok, apply: func(t *table) { delete(t.items, pk) }}, nil

	case it.ConditionCheck != nil:
		c := it.ConditionCheck
		t, err := f.table(sdkaws.ToString(c.TableName))
		if err != nil {
			return pendingWrite{}, err
		}
		pk, err := keyOf(t, c.Key)
		if err != nil {
			return pendingWrite{}, err
		}
		ec := exprContext{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		ok, err := ec.eval(sdkaws.ToString(c.ConditionExpression), t.items[pk])
		if err != nil {
			return pendingWrite{}, err
		}
		return pendingWrite{t: t, pk: pk, failed: !ok}, nil
	}
	return pendingWrite{}, errors.New("dynamotest: empty transact item")
}

type exprContext struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e exprContext) name(tok string) string {
	if strings.HasPrefix(tok, "#") {
		if n, ok := e.names[tok]; ok {
			return n
		}
	}
	return tok
}

func (e exprContext) eval(cond string, item map[string]types.AttributeValue) (bool, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true, nil
	}
	for _, clause := range strings.Split(cond, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := e.name(strings.TrimSpace(clause[len("attribute_not_exists(") : len(clause)-1]))
			if _, ok := item[attr]; ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := e.name(strings.TrimSpace(clause[len("attribute_exists(") : len(clause)-1]))
			if _, ok := item[attr]; !ok {
				return false, nil
			}
		default:
			parts := strings.Fields(clause)
			if len(parts) != 3 {
				return false, fmt.Errorf("dynamotest: unsupported condition %q", clause)
			}
			want, ok := e.values[parts[2]]
			if !ok {
				return false, fmt.Errorf("dynamotest: missing value %s", parts[2])
			}
			got, present := item[e.name(parts[0])]
			switch parts[1] {
			case "=":
				if !present || !reflect.DeepEqual(got, want) {
					return false, nil
				}
			case "<>":
				if !present || reflect.DeepEqual(got, want) {
					return false, nil
				}
			default:
				return false, fmt.Errorf("dynamotest: unsupported operator %s", parts[1])
			}
		}
	}
	return true, nil
}

func (e exprContext) applySet(expr string, item map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(expr[len("SET "):], ",") {
		kv := strings.SplitN(assign, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("dynamotest: bad assignment %q", assign)
		}
		lhs, rhs := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		v, ok := e.values[rhs]
		if !ok {
			return fmt.Errorf("dynamotest: missing value %s", rhs)
		}
		item[e.name(lhs)] = v
	}
	return nil
}

func keyOf(t *table, item map[string]types.AttributeValue) (string, error) {
	v, ok := item[t.key].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamotest: missing string key %s", t.key)
	}
	return v.Value, nil
}

func conditionalFailure() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
