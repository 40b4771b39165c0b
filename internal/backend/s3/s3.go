// Package s3 implements the storage capability against any S3-compatible
// object store using the MinIO client. Scopes map to key prefixes and
// access URLs are presigned GETs.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/model"
)

const (
	defaultURLExpiry = 15 * time.Minute

	// deleteConcurrency bounds the fan-out of bulk delete operations.
	deleteConcurrency = 8
)

// Backend stores files as objects in one bucket.
type Backend struct {
	tag       string
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	settings  backend.Settings
}

var _ backend.Capability = (*Backend)(nil)

// New creates an S3 backend from connection params: endpoint and bucket
// (required), region, access_key + secret_key (falls back to the AWS
// credential file when absent), use_ssl (default true), path_style
// (default false), url_expiry (Go duration, default 15m).
func New(tag string, params map[string]string, settings backend.Settings) (*Backend, error) {
	endpoint := params["endpoint"]
	bucket := params["bucket"]
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("s3 backend %q: endpoint and bucket params are required", tag)
	}

	var creds *credentials.Credentials
	if params["access_key"] != "" && params["secret_key"] != "" {
		creds = credentials.NewStaticV4(params["access_key"], params["secret_key"], "")
	} else {
		creds = credentials.NewFileAWSCredentials("", "")
	}

	bucketLookup := minio.BucketLookupDNS
	if params["path_style"] == "true" {
		bucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, &minio.Options{
		Region:       params["region"],
		Creds:        creds,
		Secure:       params["use_ssl"] != "false",
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize s3 client: %w", err)
	}

	urlExpiry := defaultURLExpiry
	if v := params["url_expiry"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse url_expiry %q: %w", v, err)
		}
		urlExpiry = d
	}

	return &Backend{
		tag:       tag,
		client:    client,
		bucket:    bucket,
		urlExpiry: urlExpiry,
		settings:  settings,
	}, nil
}

func (b *Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Store uploads the source under the resolved key, hashing the stream as
// it is read.
func (b *Backend) Store(ctx context.Context, src model.Source, opts model.Options) (*model.FileInfo, error) {
	key := opts.Key
	if key == "" || key == model.KeyAuto {
		key = backend.DeriveKey(src)
	}
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	target, err := backend.ResolveKey(ctx, scoped, opts, b.settings.MaxRenameAttempts, b.exists)
	if err != nil {
		return nil, err
	}

	r, size, err := backend.OpenSource(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	d := backend.NewDigester(opts.Hashes)
	body := io.TeeReader(backend.ContextReader(ctx, r), d.Writer())
	putOpts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	up, err := b.client.PutObject(ctx, b.bucket, target, body, size, putOpts)
	if err != nil {
		return nil, fmt.Errorf("upload object %q: %w", target, err)
	}

	modified := up.LastModified
	if modified.IsZero() {
		st, err := b.client.StatObject(ctx, b.bucket, target, minio.StatObjectOptions{})
		if err == nil {
			modified = st.LastModified
		}
	}

	info := &model.FileInfo{
		Key:      target,
		Backend:  b.tag,
		Size:     up.Size,
		Hashes:   d.Sums(),
		Modified: modified,
	}
	if u, err := b.presign(ctx, target); err == nil {
		info.URL = u
	}
	return info, nil
}

// GetInfo stats the object, computing requested digests by reading it back.
func (b *Backend) GetInfo(ctx context.Context, key string, opts model.Options) (*model.FileInfo, error) {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	st, err := b.client.StatObject(ctx, b.bucket, scoped, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat object %q: %w", scoped, err)
	}

	var hashes []model.Hash
	if len(opts.Hashes) > 0 {
		obj, err := b.client.GetObject(ctx, b.bucket, scoped, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("get object %q: %w", scoped, err)
		}
		defer obj.Close()
		hashes, _, err = backend.DigestReader(obj, opts.Hashes, b.settings.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("hash object %q: %w", scoped, err)
		}
	}

	info := &model.FileInfo{
		Key:      scoped,
		Backend:  b.tag,
		Size:     st.Size,
		Hashes:   hashes,
		Modified: st.LastModified,
	}
	if u, err := b.presign(ctx, scoped); err == nil {
		info.URL = u
	}
	return info, nil
}

// GetURL returns a presigned GET URL for the object.
func (b *Backend) GetURL(ctx context.Context, key string, opts model.Options) (string, error) {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return "", err
	}
	if ok, err := b.exists(ctx, scoped); err != nil {
		return "", fmt.Errorf("stat object %q: %w", scoped, err)
	} else if !ok {
		return "", fmt.Errorf("object %q does not exist", scoped)
	}
	return b.presign(ctx, scoped)
}

func (b *Backend) presign(ctx context.Context, key string) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, b.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}

// ListFiles lists object keys under the scope prefix.
func (b *Backend) ListFiles(ctx context.Context, opts model.Options) ([]string, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    scopePrefix(opts.Scope),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Delete removes the object. Missing keys are not an error (S3 delete is
// idempotent).
func (b *Backend) Delete(ctx context.Context, key string, opts model.Options) error {
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, b.bucket, scoped, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", scoped, err)
	}
	return nil
}

// DeleteScope removes every object under the scope prefix.
func (b *Backend) DeleteScope(ctx context.Context, opts model.Options) error {
	if opts.Scope == "" {
		return fmt.Errorf("delete scope: empty scope")
	}
	return b.deletePrefix(ctx, scopePrefix(opts.Scope))
}

// DeleteAll removes every object in the bucket.
func (b *Backend) DeleteAll(ctx context.Context, _ model.Options) error {
	return b.deletePrefix(ctx, "")
}

// deletePrefix lists objects under prefix and deletes them with a bounded
// fan-out.
func (b *Backend) deletePrefix(ctx context.Context, prefix string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		key := obj.Key
		g.Go(func() error {
			if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("remove object %q: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// TestConnection verifies the bucket exists and is reachable.
func (b *Backend) TestConnection(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", b.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", b.bucket)
	}
	return nil
}

func scopePrefix(scope string) string {
	if scope == "" {
		return ""
	}
	return strings.TrimSuffix(scope, "/") + "/"
}
