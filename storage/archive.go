package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ulikunitz/xz"

	"github.com/vultisig/trigger-plugin/internal/types"
)

type ArchiveConfig struct {
	Bucket    string `mapstructure:"bucket" json:"bucket,omitempty"`
	Region    string `mapstructure:"region" json:"region,omitempty"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	AccessKey string `mapstructure:"access_key" json:"access_key,omitempty"`
	Secret    string `mapstructure:"secret" json:"secret,omitempty"`
	Prefix    string `mapstructure:"prefix" json:"prefix,omitempty"`
}

func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Receipt is the archived record of one submitted execution.
type Receipt struct {
	Execution types.ExecutionRecord `json:"execution"`
	Order     types.OrderSpec       `json:"order"`
	Result    *types.ExecuteResult  `json:"result,omitempty"`
}

// ReceiptArchive stores xz compressed JSON receipts in S3.
type ReceiptArchive struct {
	bucket string
	prefix string
	client ObjectPutter
}

func NewReceiptArchive(cfg ArchiveConfig) (*ReceiptArchive, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.Secret, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewReceiptArchiveWithClient(cfg.Bucket, cfg.Prefix, s3.New(sess)), nil
}

func NewReceiptArchiveWithClient(bucket, prefix string, client ObjectPutter) *ReceiptArchive {
	return &ReceiptArchive{bucket: bucket, prefix: prefix, client: client}
}

func (a *ReceiptArchive) key(r Receipt) string {
	return path.Join(a.prefix, r.Execution.OrderID.String(), fmt.Sprintf("%d-%s.json.xz", r.Execution.Slot, r.Execution.ID))
}

// Store uploads the receipt and returns its object key.
func (a *ReceiptArchive) Store(ctx context.Context, r Receipt) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}
	compressed, err := Compress(payload)
	if err != nil {
		return "", err
	}
	key := a.key(r)
	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("xz"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt: %w", err)
	}
	return key, nil
}

func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close xz writer: %w", err)
	}
	return buf.Bytes(), nil
}

func Decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return io.ReadAll(r)
}
