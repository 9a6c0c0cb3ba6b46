// Package s3 implements a slot stored as a single object in an S3 compatible
// bucket (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"treewalk/internal/slot/core"
)

// Config holds explicit construction parameters. Credentials come from the
// default AWS chain (env, shared config, instance role).
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; enables a custom endpoint such as MinIO
	Prefix    string // optional key prefix, e.g. "treewalk/"
	PathStyle bool
}

// Slot maps one slot name onto the object <prefix><key>.json.
type Slot struct {
	client *s3.Client
	bucket string
	key    string
	name   string
}

// New creates an S3 slot from cfg.
func New(ctx context.Context, cfg Config, name string) (*Slot, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSlot(client, cfg.Bucket, cfg.Prefix, name)
}

func newSlot(client *s3.Client, bucket, prefix, name string) (*Slot, error) {
	key, err := core.KeyFor(name)
	if err != nil {
		return nil, err
	}
	return &Slot{client: client, bucket: bucket, key: prefix + key + ".json", name: name}, nil
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Key returns the object key backing the slot.
func (s *Slot) Key() string { return s.key }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverS3 }

// Read fetches the object; a missing object maps to core.ErrEmpty.
func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		if isNotFound(err) {
			return nil, core.ErrEmpty
		}
		return nil, fmt.Errorf("get object %s: %w", s.key, err)
	}
	defer func() { _ = out.Body.Close() }()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.key, err)
	}
	return b, nil
}

// Write overwrites the object with payload.
func (s *Slot) Write(ctx context.Context, payload []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", s.key, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Slot) Close() error { return nil }

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return strings.EqualFold(code, "NoSuchKey") || strings.EqualFold(code, "NotFound")
	}
	return false
}
