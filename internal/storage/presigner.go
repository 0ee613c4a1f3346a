package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPresignExpiry is the fallback lifetime for presigned URLs.
const DefaultPresignExpiry = 15 * time.Minute

// Config describes the S3-compatible object store the portal uploads to.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// PresignedUpload describes a one-shot upload slot issued to a client.
type PresignedUpload struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignedDownload describes a short-lived download link for a stored object.
type PresignedDownload struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Presigner issues presigned PUT and GET URLs against a single bucket.
// Signing happens locally; no network round trip is involved.
type Presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// Option customises a Presigner.
type Option func(*Presigner)

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(p *Presigner) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewPresigner builds a presigner for the configured bucket.
func NewPresigner(cfg Config, opts ...Option) (*Presigner, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("storage: endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	p := &Presigner{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// ObjectKey derives a collision-free object key for an upload, namespaced by
// project so bucket listings stay navigable.
func ObjectKey(projectID, fileName string) string {
	base := path.Base(strings.TrimSpace(fileName))
	if base == "" || base == "." || base == "/" {
		base = "upload"
	}
	return fmt.Sprintf("projects/%s/%s-%s", projectID, uuid.NewString(), base)
}

// PresignUpload issues a presigned PUT URL for the given object key.
func (p *Presigner) PresignUpload(ctx context.Context, objectKey string) (*PresignedUpload, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil, errors.New("storage: object key is required")
	}

	presigned, err := p.client.PresignedPutObject(ctx, p.bucket, objectKey, p.expiry)
	if err != nil {
		return nil, fmt.Errorf("storage: presign upload: %w", err)
	}

	return &PresignedUpload{
		ObjectKey: objectKey,
		URL:       presigned.String(),
		Method:    "PUT",
		ExpiresAt: p.now().Add(p.expiry),
	}, nil
}

// PresignDownload issues a presigned GET URL for the given object key. The
// optional fileName sets a Content-Disposition header so browsers keep the
// original name.
func (p *Presigner) PresignDownload(ctx context.Context, objectKey, fileName string) (*PresignedDownload, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil, errors.New("storage: object key is required")
	}

	params := url.Values{}
	if fileName = strings.TrimSpace(fileName); fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}

	presigned, err := p.client.PresignedGetObject(ctx, p.bucket, objectKey, p.expiry, params)
	if err != nil {
		return nil, fmt.Errorf("storage: presign download: %w", err)
	}

	return &PresignedDownload{
		ObjectKey: objectKey,
		URL:       presigned.String(),
		ExpiresAt: p.now().Add(p.expiry),
	}, nil
}

// RemoveObject deletes an object from the bucket. Used when a file record is
// removed from a project.
func (p *Presigner) RemoveObject(ctx context.Context, objectKey string) error {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return errors.New("storage: object key is required")
	}
	return p.client.RemoveObject(ctx, p.bucket, objectKey, minio.RemoveObjectOptions{})
}
