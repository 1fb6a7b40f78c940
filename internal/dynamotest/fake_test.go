package dynamotest

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func TestPutItem_ConditionAndVersion(t *testing.T) {
	f := New(Table{Name: "t", Key: "id"})
	ctx := context.Background()

	put := func(version string, cond string, expected string) error {
		in := &dyn.PutItemInput{
			TableName: sdkaws.String("t"),
			Item:      map[string]types.AttributeValue{"id": s("a"), "version": &types.AttributeValueMemberN{Value: version}},
		}
		if cond != "" {
			in.ConditionExpression = sdkaws.String(cond)
			in.ExpressionAttributeNames = map[string]string{"#v": "version"}
			if expected != "" {
				in.ExpressionAttributeValues = map[string]types.AttributeValue{":expected": &types.AttributeValueMemberN{Value: expected}}
			}
		}
		_, err := f.PutItem(ctx, in)
		return err
	}

	if err := put("1", "attribute_not_exists(id)", ""); err != nil {
		t.Fatalf("first put: %v", err)
	}
	var ccf *types.ConditionalCheckFailedException
	if err := put("1", "attribute_not_exists(id)", ""); !errors.As(err, &ccf) {
		t.Fatalf("expected conditional failure, got %v", err)
	}
	if err := put("2", "#v = :expected", "1"); err != nil {
		t.Fatalf("versioned put: %v", err)
	}
	if err := put("3", "#v = :expected", "1"); !errors.As(err, &ccf) {
		t.Fatalf("stale version should fail, got %v", err)
	}
}

func TestTransactWriteItems_CancellationReasons(t *testing.T) {
	f := New(Table{Name: "a", Key: "id"}, Table{Name: "b", Key: "code"})
	ctx := context.Background()
	if err := f.Seed("b", map[string]types.AttributeValue{"code": s("X")}); err != nil {
		t.Fatal(err)
	}

	_, err := f.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{
		{Put: &types.Put{TableName: sdkaws.String("a"), Item: map[string]types.AttributeValue{"id": s("1")}, ConditionExpression: sdkaws.String("attribute_not_exists(id)")}},
		{Put: &types.Put{TableName: sdkaws.String("b"), Item: map[string]types.AttributeValue{"code": s("X")}, ConditionExpression: sdkaws.String("attribute_not_exists(code)")}},
	}})
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected TransactionCanceledException, got %v", err)
	}
	if got := *tce.CancellationReasons[1].Code; got != "ConditionalCheckFailed" {
		t.Fatalf("reason[1] = %s", got)
	}
	if got := *tce.CancellationReasons[0].Code; got != "None" {
		t.Fatalf("reason[0] = %s", got)
	}
	if f.Len("a") != 0 {
		t.Fatalf("nothing should be written on cancel")
	}
}

func TestQuery_IndexAndFilter(t *testing.T) {
	f := New(Table{Name: "orders", Key: "order_id", Indexes: map[string]string{"vendor_id-index": "vendor_id"}})
	for _, it := range []map[string]types.AttributeValue{
		{"order_id": s("1"), "vendor_id": s("v1"), "status": s("pending")},
		{"order_id": s("2"), "vendor_id": s("v1"), "status": s("completed")},
		{"order_id": s("3"), "vendor_id": s("v2"), "status": s("pending")},
	} {
		if err := f.Seed("orders", it); err != nil {
			t.Fatal(err)
		}
	}

	out, err := f.Query(context.Background(), &dyn.QueryInput{
		TableName:                 sdkaws.String("orders"),
		IndexName:                 sdkaws.String("vendor_id-index"),
		KeyConditionExpression:    sdkaws.String("#pk = :pk"),
		FilterExpression:          sdkaws.String("#s = :s"),
		ExpressionAttributeNames:  map[string]string{"#pk": "vendor_id", "#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("v1"), ":s": s("pending")},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(out.Items))
	}
}

func TestUpdateItem_SetAndFailOn(t *testing.T) {
	f := New(Table{Name: "t", Key: "id"})
	ctx := context.Background()
	_, err := f.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 sdkaws.String("t"),
		Key:                       map[string]types.AttributeValue{"id": s("k")},
		UpdateExpression:          sdkaws.String("SET #s = :s, note = :n"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": s("DONE"), ":n": s("hi")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	item := f.Item("t", "k")
	if item["status"].(*types.AttributeValueMemberS).Value != "DONE" || item["note"] == nil {
		t.Fatalf("unexpected item %+v", item)
	}

	boom := errors.New("boom")
	f.FailOn("GetItem", boom)
	if _, err := f.GetItem(ctx, &dyn.GetItemInput{TableName: sdkaws.String("t"), Key: map[string]types.AttributeValue{"id": s("k")}}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
}
