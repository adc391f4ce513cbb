package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/models"
)

// remotePayload is the object body stored per key: the entry plus its
// captured output, so a remote hit is self-contained.
type remotePayload struct {
	Entry  *Entry `json:"entry"`
	Output Output `json:"output"`
}

// Remote is the optional object-storage cache tier. All calls are bounded by
// a per-call timeout and retried once; failures map to
// models.ErrCacheUnavailable so the tiered store can degrade to local-only.
type Remote struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewRemote builds the remote tier from configuration. Returns nil (and no
// error) when the tier is not configured.
func NewRemote(cfg config.RemoteCacheConfig) (*Remote, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("remote cache client: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, timeout: timeout}, nil
}

func (r *Remote) objectKey(key Key) string {
	k := key.TaskID + "/" + key.Fingerprint + ".json"
	if r.prefix != "" {
		return r.prefix + "/" + k
	}
	return k
}

// Get fetches an entry and its output. A miss returns (nil, _, nil);
// backend trouble returns an error wrapping models.ErrCacheUnavailable.
func (r *Remote) Get(ctx context.Context, key Key) (*Entry, Output, error) {
	var payload remotePayload
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		obj, err := r.client.GetObject(callCtx, r.bucket, r.objectKey(key), minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &payload)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, Output{}, nil
		}
		return nil, Output{}, fmt.Errorf("%w: %v", models.ErrCacheUnavailable, err)
	}
	if payload.Entry == nil {
		return nil, Output{}, nil
	}
	return payload.Entry, payload.Output, nil
}

// Put writes an entry and its output. Calls are idempotent; a race between
// two machines writing the same fingerprint resolves last-write-wins.
func (r *Remote) Put(ctx context.Context, e *Entry, out Output) error {
	data, err := json.Marshal(remotePayload{Entry: e, Output: out})
	if err != nil {
		return fmt.Errorf("encode remote payload: %w", err)
	}
	err = r.withRetry(ctx, func(callCtx context.Context) error {
		_, err := r.client.PutObject(callCtx, r.bucket, r.objectKey(Key{TaskID: e.TaskID, Fingerprint: e.Fingerprint}),
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrCacheUnavailable, err)
	}
	return nil
}

// withRetry runs fn with the per-call timeout and retries once after a short
// backoff. Unavailability must never block a run beyond this bound.
func (r *Remote) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if isNotFound(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
