package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
)

// GSI names on the orders table.
const (
	StudentIndex = "student_id-index"
	VendorIndex  = "vendor_id-index"
)

var (
	// ErrStatusMismatch is returned when the stored order moved on since it was read.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDeliveryCodeTaken is returned when another order already owns the delivery code.
	ErrDeliveryCodeTaken = errors.New("delivery code already in use")
	// ErrTransactionConflict is returned when an item joined to Create failed its condition.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// deliveryCodeItem reserves a delivery code in the codes table.
type deliveryCodeItem struct {
	DeliveryCode string `dynamodbav:"delivery_code"`
	OrderID      string `dynamodbav:"order_id"`
}

// Store encapsulates operations on the orders table.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	codesTable string
	nowFunc    func() time.Time
}

// NewStore creates a new orders Store. codesTable holds one item per delivery code.
func NewStore(client aws.DynamoDBAPI, tableName, codesTable string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		codesTable: codesTable,
		nowFunc:    time.Now,
	}
}

// Create atomically writes:
//   - the order record (attribute_not_exists(order_id))
//   - the delivery code reservation (attribute_not_exists(delivery_code))
//   - any extra items supplied by the caller, e.g. the student's emptied cart
//
// Returns ErrDeliveryCodeTaken if the code is reserved and
// ErrTransactionConflict if one of the extra items failed its condition.
func (s *Store) Create(ctx context.Context, o *Order, extra ...types.TransactWriteItem) error {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1

	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	codeMap, err := attributevalue.MarshalMap(deliveryCodeItem{DeliveryCode: o.DeliveryCode, OrderID: o.OrderID})
	if err != nil {
		return fmt.Errorf("marshal delivery code: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.codesTable,
				Item:                codeMap,
				ConditionExpression: awsString("attribute_not_exists(delivery_code)"),
			},
		},
	}
	transactItems = append(transactItems, extra...)

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, r := range tce.CancellationReasons {
				if r.Code == nil || *r.Code != "ConditionalCheckFailed" {
					continue
				}
				switch {
				case i == 1:
					return ErrDeliveryCodeTaken
				case i >= 2:
					return ErrTransactionConflict
				}
			}
			return fmt.Errorf("transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByDeliveryCode resolves a delivery code to its order. Returns (nil, nil) if not found.
func (s *Store) GetByDeliveryCode(ctx context.Context, code string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.codesTable,
		Key: map[string]types.AttributeValue{
			"delivery_code": &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get delivery code: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c deliveryCodeItem
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal delivery code: %w", err)
	}
	return s.Get(ctx, c.OrderID)
}

// ListByStudent returns every order placed by studentID.
func (s *Store) ListByStudent(ctx context.Context, studentID string) ([]Order, error) {
	return s.queryIndex(ctx, StudentIndex, "student_id", studentID)
}

// ListByVendor returns every order addressed to vendorID.
func (s *Store) ListByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return s.queryIndex(ctx, VendorIndex, "vendor_id", vendorID)
}

func (s *Store) queryIndex(ctx context.Context, index, attr, value string) ([]Order, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(index),
		KeyConditionExpression:   awsString("#k = :k"),
		ExpressionAttributeNames: map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: value},
		},
	})
	var out []Order
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", index, err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// Replace conditionally writes o if the stored order still has status
// expected and the version o was read at. On success o.Version is bumped.
// Returns ErrStatusMismatch if the condition failed.
func (s *Store) Replace(ctx context.Context, o *Order, expected Status) error {
	version := o.Version
	o.Version = version + 1
	o.UpdatedAt = s.nowFunc()

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		o.Version = version
		return fmt.Errorf("marshal order item: %w", err)
	}
	vv, err := attributevalue.Marshal(version)
	if err != nil {
		o.Version = version
		return fmt.Errorf("marshal version: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("#s = :expected AND #v = :version"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
			":version":  vv,
		},
	})
	if err != nil {
		o.Version = version
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// UpdatePayment conditionally moves o's payment_status to next, guarded by
// the payment status and version o was read at. paymentID is stored when
// non-empty. On success o is updated and its version bumped, so a Replace
// from an older read fails. Returns ErrStatusMismatch if the condition failed.
func (s *Store) UpdatePayment(ctx context.Context, o *Order, next PaymentStatus, paymentID string) error {
	now := s.nowFunc()
	ua, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	vv, err := attributevalue.Marshal(o.Version)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	nv, err := attributevalue.Marshal(o.Version + 1)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	updateExpr := "SET #p = :new, #v = :next, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(next)},
		":expected": &types.AttributeValueMemberS{Value: string(o.PaymentStatus)},
		":version":  vv,
		":next":     nv,
		":ua":       ua,
	}
	if paymentID != "" {
		updateExpr += ", payment_id = :pid"
		values[":pid"] = &types.AttributeValueMemberS{Value: paymentID}
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: o.OrderID},
		},
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("attribute_exists(order_id) AND #p = :expected AND #v = :version"),
		ExpressionAttributeNames:  map[string]string{"#p": "payment_status", "#v": "version"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	o.PaymentStatus = next
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	o.Version++
	o.UpdatedAt = now
	return nil
}

// HasOpenOrdersForItem reports whether an order of vendorID that is still
// pending, confirmed or preparing contains menuItemID.
func (s *Store) HasOpenOrdersForItem(ctx context.Context, vendorID, menuItemID string) (bool, error) {
	orders, err := s.ListByVendor(ctx, vendorID)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if !o.Status.Open() {
			continue
		}
		for _, l := range o.Items {
			if l.MenuItemID == menuItemID {
				return true, nil
			}
		}
	}
	return false, nil
}

func awsString(s string) *string { return &s }
