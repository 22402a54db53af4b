package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"github.com/googleapis/gax-go/v2"
	"github.com/italolelis/ytaudio_archiver/internal/downloader/progress"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const progressInterval = 64 * 1024 * 1024

// Config configures the connection to a bucket.
type Config struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	// AccessToken, when set, is used as a static OAuth2 bearer token.
	AccessToken   string
	ExistsTimeout time.Duration
	UploadTimeout time.Duration
}

// object is the part of *storage.ObjectHandle used by Bucket.
type object interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewWriter(ctx context.Context) io.WriteCloser
}

// Bucket is a transfer.Store over a Google Cloud Storage bucket. Keys are
// stored under the configured prefix.
type Bucket struct {
	cfg    Config
	client *storage.Client
	handle func(name string, upload bool) object
}

// Open connects to the bucket and verifies it is reachable.
func Open(ctx context.Context, cfg Config) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	b := newBucket(cfg, client)

	checkCtx, cancel := context.WithTimeout(ctx, b.cfg.ExistsTimeout)
	defer cancel()

	if _, err := client.Bucket(cfg.Bucket).Attrs(checkCtx); err != nil {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
			client.Close()

			return nil, fmt.Errorf("failed to reach bucket %s: %w", cfg.Bucket, err)
		}

		// Object-level credentials may not read bucket metadata.
		logctx.LoggerFromContext(ctx).Warn("cannot read bucket metadata, continuing", "bucket", cfg.Bucket, "err", err)
	}

	logctx.LoggerFromContext(ctx).Info("connected to bucket", "bucket", cfg.Bucket, "prefix", cfg.Prefix)

	return b, nil
}

func clientOptions(cfg Config) []option.ClientOption {
	var opts []option.ClientOption

	switch {
	case cfg.AccessToken != "":
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	return opts
}

func newBucket(cfg Config, client *storage.Client) *Bucket {
	if cfg.ExistsTimeout <= 0 {
		cfg.ExistsTimeout = 60 * time.Second
	}

	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 300 * time.Second
	}

	b := &Bucket{cfg: cfg, client: client}
	bkt := client.Bucket(cfg.Bucket)

	b.handle = func(name string, upload bool) object {
		return objectHandle{bkt.Object(name), upload}
	}

	return b
}

// objectHandle applies the retry policy and, for uploads, the
// does-not-exist precondition.
type objectHandle struct {
	h      *storage.ObjectHandle
	upload bool
}

func (o objectHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return o.h.Retryer(retryOptions(30*time.Second)...).Attrs(ctx)
}

func (o objectHandle) NewWriter(ctx context.Context) io.WriteCloser {
	h := o.h.Retryer(retryOptions(60 * time.Second)...)
	if o.upload {
		h = h.If(storage.Conditions{DoesNotExist: true})
	}

	return h.NewWriter(ctx)
}

// retryOptions retries deadline, unavailable and rate-limit errors with
// exponential backoff starting at one second.
func retryOptions(maxBackoff time.Duration) []storage.RetryOption {
	return []storage.RetryOption{
		storage.WithBackoff(gax.Backoff{
			Initial:    time.Second,
			Max:        maxBackoff,
			Multiplier: 2,
		}),
		storage.WithPolicy(storage.RetryAlways),
		storage.WithErrorFunc(isRetryable),
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable,
			http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return true
		}

		return false
	}

	return storage.ShouldRetry(err)
}

// ObjectName returns the object name key is stored under.
func (b *Bucket) ObjectName(key string) string {
	key = strings.TrimPrefix(key, "/")
	if b.cfg.Prefix == "" {
		return key
	}

	return path.Join(b.cfg.Prefix, key)
}

// Exists reports whether key is already stored.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ExistsTimeout)
	defer cancel()

	_, err := b.handle(b.ObjectName(key), false).Attrs(ctx)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}

	return false, &transfer.StorageError{Operation: "exists", Key: key, Err: err}
}

// Put uploads localPath to key. It fails with transfer.ErrAlreadyExists when
// another writer created the object first.
func (b *Bucket) Put(ctx context.Context, key, localPath string) error {
	logger := logctx.LoggerFromContext(ctx)
	name := b.ObjectName(key)

	f, err := os.Open(localPath)
	if err != nil {
		return &transfer.StorageError{Operation: "put", Key: key, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &transfer.StorageError{Operation: "put", Key: key, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.UploadTimeout)
	defer cancel()

	logger.Info("uploading file", "object", "gs://"+b.cfg.Bucket+"/"+name, "size", humanize.Bytes(uint64(info.Size())))

	pr := progress.NewReader(f, info.Size(), progressInterval, func(read, total int64) {
		logger.Debug("upload progress",
			"object", name,
			"uploaded", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
	})

	w := b.handle(name, true).NewWriter(ctx)

	if _, err := io.Copy(w, pr); err != nil {
		// Close commits whatever was written unless the context is done first.
		cancel()
		_ = w.Close()

		return &transfer.StorageError{Operation: "put", Key: key, Err: mapError(err)}
	}

	if err := w.Close(); err != nil {
		return &transfer.StorageError{Operation: "put", Key: key, Err: mapError(err)}
	}

	logger.Info("uploaded file", "object", "gs://"+b.cfg.Bucket+"/"+name)

	return nil
}

// Close releases the client.
func (b *Bucket) Close() error {
	if b.client == nil {
		return nil
	}

	return b.client.Close()
}

func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %v", transfer.ErrAlreadyExists, err)
	}

	return err
}
