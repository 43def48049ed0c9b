// Package backup copies the canvas file to S3 compatible object storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pixelcanvas/internal/canvas"
)

// keyTimeFormat orders object keys chronologically.
const keyTimeFormat = "20060102T150405Z"

// ErrNoCredentials is returned when the environment holds no AWS keys.
var ErrNoCredentials = errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")

// PutObjectAPI is the part of *s3.Client used by an Uploader.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Source provides the canvas content to copy.
type Source interface {
	ReadAll() (canvas.Snapshot, error)
}

// Uploader writes canvas snapshots to a bucket.
type Uploader struct {
	client PutObjectAPI
	source Source
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewUploader returns an Uploader writing objects named prefix+timestamp.
func NewUploader(client PutObjectAPI, source Source, bucket, prefix string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		client: client,
		source: source,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

// NewClient builds an S3 client from static environment credentials. A non
// empty endpoint selects an S3 compatible service with path style addressing.
func NewClient(region, endpoint string) (*s3.Client, error) {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		return nil, ErrNoCredentials
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts), nil
}

// Backup uploads the current canvas and returns the object key.
func (u *Uploader) Backup(ctx context.Context) (string, error) {
	snap, err := u.source.ReadAll()
	if err != nil {
		return "", fmt.Errorf("backup: read canvas: %w", err)
	}

	key := u.prefix + u.now().UTC().Format(keyTimeFormat)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(snap.Cells),
		ContentLength: aws.Int64(int64(len(snap.Cells))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"width":  strconv.Itoa(snap.Width),
			"height": strconv.Itoa(snap.Height),
		},
	})
	if err != nil {
		return "", fmt.Errorf("backup: upload %s: %w", key, err)
	}
	return key, nil
}

// Run uploads a backup every interval until ctx is done.
func (u *Uploader) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			key, err := u.Backup(ctx)
			if err != nil {
				u.logger.Error("canvas backup failed", "err", err)
				continue
			}
			u.logger.Info("canvas backed up", "bucket", u.bucket, "key", key)
		case <-ctx.Done():
			return
		}
	}
}
