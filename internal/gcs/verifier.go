package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// BucketVerifier confirms a gs:// staging location refers to an existing
// bucket. The storage client is created on first use.
type BucketVerifier struct {
	opts []option.ClientOption

	once      sync.Once
	client    *storage.Client
	clientErr error
}

func NewBucketVerifier(opts ...option.ClientOption) *BucketVerifier {
	return &BucketVerifier{opts: opts}
}

// NewBucketVerifierWithEndpoint targets a storage emulator without auth.
func NewBucketVerifierWithEndpoint(endpoint string) *BucketVerifier {
	return NewBucketVerifier(option.WithEndpoint(endpoint), option.WithoutAuthentication())
}

func BucketName(location string) (string, error) {
	name, ok := strings.CutPrefix(location, "gs://")
	if !ok {
		return "", fmt.Errorf("staging location '%s' is not a gs:// uri", location)
	}
	name, _, _ = strings.Cut(name, "/")
	if name == "" {
		return "", fmt.Errorf("staging location '%s' has no bucket", location)
	}
	return name, nil
}

func (v *BucketVerifier) VerifyStaging(ctx context.Context, location string) error {
	bucket, err := BucketName(location)
	if err != nil {
		return err
	}

	v.once.Do(func() {
		v.client, v.clientErr = storage.NewClient(ctx, v.opts...)
	})
	if v.clientErr != nil {
		return fmt.Errorf("error initializing storage client: %w", v.clientErr)
	}

	attrs, err := v.client.Bucket(bucket).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("staging bucket %s does not exist: %w", bucket, err)
		}
		return fmt.Errorf("error reading staging bucket %s: %w", bucket, err)
	}

	slog.Info("verified staging bucket", "bucket", attrs.Name, "location", attrs.Location)
	return nil
}

func (v *BucketVerifier) Close() error {
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}
