package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
)

// RoleIndex is the GSI on the role attribute.
const RoleIndex = "role-index"

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrStudentIDTaken  = errors.New("student id already registered")
	ErrVersionConflict = errors.New("account version conflict")
)

// lookupKey guards uniqueness of email and student id. One item per value
// lives in the keys table next to the account.
type lookupKey struct {
	LookupKey string `dynamodbav:"lookup_key"` // PK
	AccountID string `dynamodbav:"account_id"`
}

func emailKey(email string) string { return "email#" + strings.ToLower(email) }
func studentKey(id string) string { return "student_id#" + strings.ToUpper(id) }

// Store encapsulates operations on the accounts and account_keys tables.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	keysTable string
	nowFunc   func() time.Time
}

// NewStore creates a new accounts Store.
func NewStore(client aws.DynamoDBAPI, tableName, keysTable string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		keysTable: keysTable,
		nowFunc:   time.Now,
	}
}

// Create writes a new account together with its uniqueness guards in one
// transaction. It sets Version to 1 and stamps timestamps on acct.
// Returns ErrEmailTaken or ErrStudentIDTaken when a guard already exists.
func (s *Store) Create(ctx context.Context, acct *Account) error {
	now := s.nowFunc()
	acct.Version = 1
	acct.CreatedAt = now
	acct.UpdatedAt = now

	acctMap, err := attributevalue.MarshalMap(acct)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	guards := []string{emailKey(acct.Email)}
	if acct.StudentID != "" {
		guards = append(guards, studentKey(acct.StudentID))
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                acctMap,
			ConditionExpression: awsString("attribute_not_exists(account_id)"),
		},
	}}
	for _, g := range guards {
		gm, err := attributevalue.MarshalMap(lookupKey{LookupKey: g, AccountID: acct.ID})
		if err != nil {
			return fmt.Errorf("marshal lookup key: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.keysTable,
				Item:                gm,
				ConditionExpression: awsString("attribute_not_exists(lookup_key)"),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, r := range tce.CancellationReasons {
				if r.Code == nil || *r.Code != "ConditionalCheckFailed" {
					continue
				}
				switch i {
				case 1:
					return ErrEmailTaken
				case 2:
					return ErrStudentIDTaken
				}
			}
		}
		return fmt.Errorf("transact write account: %w", err)
	}
	return nil
}

// Get fetches an account by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"account_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

// GetByEmail resolves the email guard and loads the account. Returns (nil, nil) if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.keysTable,
		Key: map[string]types.AttributeValue{
			"lookup_key": &types.AttributeValueMemberS{Value: emailKey(email)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get lookup key: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var k lookupKey
	if err := attributevalue.UnmarshalMap(out.Item, &k); err != nil {
		return nil, fmt.Errorf("unmarshal lookup key: %w", err)
	}
	return s.Get(ctx, k.AccountID)
}

// ListByRole returns every account with role.
func (s *Store) ListByRole(ctx context.Context, role Role) ([]Account, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(RoleIndex),
		KeyConditionExpression:   awsString("#r = :r"),
		ExpressionAttributeNames: map[string]string{"#r": "role"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberS{Value: string(role)},
		},
	})
	var out []Account
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query accounts by role: %w", err)
		}
		var batch []Account
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal accounts: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// Save writes acct if its stored version still equals acct.Version, then
// bumps acct.Version. Returns ErrVersionConflict when the account changed.
func (s *Store) Save(ctx context.Context, acct *Account) error {
	put, err := s.versionedPut(acct)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		acct.Version--
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// SaveTransactItem returns the version-checked put for acct so it can join
// another transaction. acct is advanced to the next version; callers must
// discard it if the transaction fails.
func (s *Store) SaveTransactItem(acct *Account) (types.TransactWriteItem, error) {
	put, err := s.versionedPut(acct)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (s *Store) versionedPut(acct *Account) (*types.Put, error) {
	expected := acct.Version
	acct.Version = expected + 1
	acct.UpdatedAt = s.nowFunc()

	item, err := attributevalue.MarshalMap(acct)
	if err != nil {
		acct.Version = expected
		return nil, fmt.Errorf("marshal account: %w", err)
	}
	exp, err := attributevalue.Marshal(expected)
	if err != nil {
		acct.Version = expected
		return nil, fmt.Errorf("marshal version: %w", err)
	}
	return &types.Put{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       awsString("#v = :expected"),
		ExpressionAttributeNames:  map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": exp},
	}, nil
}

func awsString(s string) *string { return &s }
