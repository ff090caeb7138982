package storage

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/vultisig/trigger-plugin/internal/types"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestReceiptArchiveStore(t *testing.T) {
	putter := &fakePutter{}
	archive := NewReceiptArchiveWithClient("receipts", "orders", putter)

	orderID := uuid.New()
	execID := uuid.New()
	receipt := Receipt{
		Execution: types.ExecutionRecord{ID: execID, OrderID: orderID, Slot: 1760000000, TxHash: "0xabc", Status: types.ExecutionStatusSubmitted},
		Order:     types.OrderSpec{Type: types.OrderTypeDCA, Amount: "100"},
		Result:    &types.ExecuteResult{TxHash: "0xabc", ReceivedAmount: "0.025"},
	}

	key, err := archive.Store(context.Background(), receipt)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !strings.HasPrefix(key, "orders/"+orderID.String()+"/1760000000-") || !strings.HasSuffix(key, ".json.xz") {
		t.Errorf("unexpected key %s", key)
	}
	if aws.StringValue(putter.input.Bucket) != "receipts" || aws.StringValue(putter.input.Key) != key {
		t.Errorf("unexpected put input %v", putter.input)
	}

	plain, err := Decompress(putter.body)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	var got Receipt
	if err := json.Unmarshal(plain, &got); err != nil {
		t.Fatalf("receipt is not JSON: %v", err)
	}
	if got.Execution.TxHash != "0xabc" || got.Result.ReceivedAmount != "0.025" {
		t.Errorf("unexpected receipt %+v", got)
	}
}

func TestArchiveConfigEnabled(t *testing.T) {
	if (ArchiveConfig{}).Enabled() {
		t.Error("archive without bucket should be disabled")
	}
	if !(ArchiveConfig{Bucket: "b"}).Enabled() {
		t.Error("archive with bucket should be enabled")
	}
}
