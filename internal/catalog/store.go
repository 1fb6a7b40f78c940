package catalog

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

// VendorIndex is the GSI on vendor_id.
const VendorIndex = "vendor_id-index"

// ErrNotFound is returned by conditional writes on a missing item.
var ErrNotFound = errors.New("menu item not found")

// Store encapsulates operations on the menu_items table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new menu items Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create inserts a new item, failing if the id is already used.
func (s *Store) Create(ctx context.Context, item *MenuItem) error {
	now := s.nowFunc()
	item.CreatedAt = now
	item.UpdatedAt = now
	return s.put(ctx, item, "attribute_not_exists(menu_item_id)")
}

// Put replaces an existing item. Returns ErrNotFound if it was deleted meanwhile.
func (s *Store) Put(ctx context.Context, item *MenuItem) error {
	item.UpdatedAt = s.nowFunc()
	return s.put(ctx, item, "attribute_exists(menu_item_id)")
}

func (s *Store) put(ctx context.Context, item *MenuItem, cond string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal menu item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: &cond,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if cond == "attribute_exists(menu_item_id)" {
				return ErrNotFound
			}
			return fmt.Errorf("menu item %s already exists: %w", item.ID, err)
		}
		return fmt.Errorf("put menu item: %w", err)
	}
	return nil
}

// Get fetches a menu item by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*MenuItem, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"menu_item_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it MenuItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal menu item: %w", err)
	}
	return &it, nil
}

// Delete removes an item. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"menu_item_id": &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: awsString("attribute_exists(menu_item_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("delete menu item: %w", err)
	}
	return nil
}

// ListByVendor returns every item owned by vendorID.
func (s *Store) ListByVendor(ctx context.Context, vendorID string) ([]MenuItem, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(VendorIndex),
		KeyConditionExpression:   awsString("#vid = :vid"),
		ExpressionAttributeNames: map[string]string{"#vid": "vendor_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":vid": &types.AttributeValueMemberS{Value: vendorID},
		},
	})
	var out []MenuItem
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query menu items: %w", err)
		}
		var batch []MenuItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal menu items: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// ListAll scans the whole table.
func (s *Store) ListAll(ctx context.Context) ([]MenuItem, error) {
	p := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	var out []MenuItem
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan menu items: %w", err)
		}
		var batch []MenuItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal menu items: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func awsString(s string) *string { return &s }
