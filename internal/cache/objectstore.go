package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/chromegate/prerender/internal/retry"
	"github.com/chromegate/prerender/internal/types"
)

// ObjectStore is a Facade backed by a Google Cloud Storage bucket, for
// deployments that share a cache across multiple gateway instances.
// Transient I/O errors are retried with backoff; object metadata carries
// ProducedAt so TTL expiry doesn't depend on clock skew between writers.
type ObjectStore struct {
	client *storage.Client
	bucket string
	ttl    TTL
	retry  retry.Config
}

const producedAtMetadataKey = "produced-at"

// NewObjectStore creates an ObjectStore for bucket, authenticating via
// credentialsFile if non-empty (application-default credentials otherwise).
func NewObjectStore(ctx context.Context, bucket string, ttl TTL, credentialsFile string) (*ObjectStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cache: create GCS client: %w", err)
	}

	return &ObjectStore{client: client, bucket: bucket, ttl: ttl, retry: retry.DefaultConfig()}, nil
}

func (o *ObjectStore) objectName(key types.CacheKey) string {
	return key.String()
}

// Get fetches the cached artifact for key, if present and not expired.
func (o *ObjectStore) Get(ctx context.Context, key types.CacheKey) (*types.Artifact, bool, error) {
	obj := o.client.Bucket(o.bucket).Object(o.objectName(key))

	var attrs *storage.ObjectAttrs
	var body []byte

	err := retry.Do(ctx, o.retry, func(ctx context.Context) error {
		a, err := obj.Attrs(ctx)
		if err != nil {
			return err
		}
		attrs = a

		r, err := obj.NewReader(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		buf, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		body = buf
		return nil
	})

	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: object store get %q: %w", o.objectName(key), err)
	}

	producedAt := attrs.Updated
	if raw, ok := attrs.Metadata[producedAtMetadataKey]; ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			producedAt = parsed
		}
	}

	if o.ttl.Expired(producedAt, time.Now()) {
		return nil, false, nil
	}

	return &types.Artifact{
		Format:      key.Format,
		Bytes:       body,
		ContentType: attrs.ContentType,
		ProducedAt:  producedAt,
	}, true, nil
}

// Put uploads artifact to the bucket at key's object name.
func (o *ObjectStore) Put(ctx context.Context, key types.CacheKey, artifact *types.Artifact) error {
	objectName := o.objectName(key)

	return retry.Do(ctx, o.retry, func(ctx context.Context) error {
		obj := o.client.Bucket(o.bucket).Object(objectName)
		w := obj.NewWriter(ctx)
		w.ContentType = artifact.ContentType
		w.Metadata = map[string]string{
			producedAtMetadataKey: artifact.ProducedAt.Format(time.RFC3339Nano),
		}

		if _, err := io.Copy(w, bytes.NewReader(artifact.Bytes)); err != nil {
			_ = w.Close()
			return fmt.Errorf("cache: object store put %q: %w", objectName, err)
		}
		return w.Close()
	})
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}

// Close releases the underlying GCS client.
func (o *ObjectStore) Close() error {
	return o.client.Close()
}
