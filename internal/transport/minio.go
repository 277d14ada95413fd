package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores parts as objects in a MinIO (or any S3-compatible) bucket.
// It is an alternative to the Telegram transport for self-hosted setups and
// satisfies the same contract: an opaque locator per part, resolved to a
// fetch URL on demand.
type Minio struct {
	client      *minio.Client
	bucket      string
	urlExpiry   time.Duration
	fetchClient *http.Client
}

// MinioOptions configures a Minio transport.
type MinioOptions struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	FetchTimeout time.Duration
}

// NewMinio creates a transport backed by the given bucket, creating the
// bucket if it does not exist yet.
func NewMinio(ctx context.Context, opts MinioOptions) (*Minio, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %v", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %v", opts.Bucket, err)
		}
	}

	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	return &Minio{
		client:      client,
		bucket:      opts.Bucket,
		urlExpiry:   time.Hour,
		fetchClient: &http.Client{Timeout: fetchTimeout},
	}, nil
}

// PutPart stores one part as an object. The object key doubles as the
// locator; a UUID prefix keeps parts of identically named files apart.
func (m *Minio) PutPart(ctx context.Context, name string, r io.Reader, size int64) (PartRef, error) {
	const op = "minio.PutPart"

	key := fmt.Sprintf("%s/%s", uuid.New().String(), name)
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return PartRef{}, m.classify(op, err)
	}

	return PartRef{FileID: key}, nil
}

// ResolvePart returns a presigned GET URL for the object key.
func (m *Minio) ResolvePart(ctx context.Context, fileID string) (string, error) {
	const op = "minio.ResolvePart"

	u, err := m.client.PresignedGetObject(ctx, m.bucket, fileID, m.urlExpiry, nil)
	if err != nil {
		return "", m.classify(op, err)
	}
	return u.String(), nil
}

// FetchPart streams the object bytes behind a presigned URL into w.
func (m *Minio) FetchPart(ctx context.Context, fetchURL string, w io.Writer) error {
	const op = "minio.FetchPart"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}

	resp, err := m.fetchClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindPermanent, Op: op, Err: fmt.Errorf("object fetch returned %d", resp.StatusCode)}
	default:
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("object fetch returned %d", resp.StatusCode)}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("failed to stream object bytes: %v", err)}
	}
	return nil
}

func (m *Minio) classify(op string, err error) *Error {
	errResp := minio.ToErrorResponse(err)
	switch errResp.Code {
	case "NoSuchKey", "NoSuchBucket", "AccessDenied":
		return &Error{Kind: KindPermanent, Op: op, Err: err}
	case "SlowDown":
		return &Error{Kind: KindRateLimited, Op: op, RetryAfter: time.Second}
	default:
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
}
