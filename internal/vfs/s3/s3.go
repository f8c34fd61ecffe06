// Package s3 implements vfs.FS against an S3-compatible object store,
// adapted from the client used to back the whole-file filesystem this
// storage engine's backend plurality was generalized from: same
// credential/endpoint handling, same path-style override for LocalStack,
// narrowed to the engine's fixed-size extent objects.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jamesmcclain/s3bd-go/internal/credentials"
	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Backend is a vfs.FS backed by an S3 bucket, one extent per object.
type Backend struct {
	bucket string
	client *s3.Client
}

// Options configures Backend construction.
type Options struct {
	Bucket   string
	Region   string
	Endpoint string // non-empty selects path-style addressing, for LocalStack
	Creds    *credentials.Credentials
}

// New builds a Backend from the given credentials and connection options.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Creds == nil || !opts.Creds.IsValid() {
		return nil, fmt.Errorf("s3 backend: credentials are required")
	}

	cfgOptions := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			opts.Creds.AccessKeyID,
			opts.Creds.SecretAccessKey,
			opts.Creds.SessionToken,
		)),
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOptions...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: load aws config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Backend{
		bucket: opts.Bucket,
		client: s3.NewFromConfig(cfg, s3Options...),
	}, nil
}

// Get implements vfs.FS.
func (b *Backend) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get %s: %w", name, vfs.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrIO)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", name, vfs.ErrIO)
	}
	return data, nil
}

// Put implements vfs.FS.
func (b *Backend) Put(ctx context.Context, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Delete implements vfs.FS.
func (b *Backend) Delete(ctx context.Context, name string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Exists implements vfs.FS.
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", name, vfs.ErrIO)
	}
	return true, nil
}

// Close implements vfs.FS. The AWS SDK client owns no closable resource.
func (b *Backend) Close() error { return nil }
