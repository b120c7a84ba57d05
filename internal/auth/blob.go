package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/vaillant2mqtt/internal/config"
)

var ErrBlobNotFound = errors.New("auth blob not found")

// BlobStore handles state mirroring to object storage.
type BlobStore interface {
	Load(ctx context.Context, provider string) ([]byte, error)
	Save(ctx context.Context, provider string, data []byte) error
}

// S3Store keeps one JSON object per provider under a common prefix.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg config.AuthConfig) (*S3Store, error) {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"blob_endpoint", cfg.BlobEndpoint},
		{"blob_bucket", cfg.BlobBucket},
		{"blob_access_key_file", cfg.BlobAccessKeyFile},
		{"blob_secret_key_file", cfg.BlobSecretKeyFile},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing blob configuration: %s", strings.Join(missing, ", "))
	}

	creds, err := staticCredentials(cfg.BlobAccessKeyFile, cfg.BlobSecretKeyFile)
	if err != nil {
		return nil, err
	}

	host, secure, err := splitEndpoint(strings.TrimSpace(cfg.BlobEndpoint))
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: strings.TrimSpace(cfg.BlobRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.TrimSpace(cfg.BlobPrefix)
	if prefix == "" {
		prefix = config.DefaultAuthBlobPrefix
	}

	return &S3Store{client: client, bucket: strings.TrimSpace(cfg.BlobBucket), prefix: prefix}, nil
}

func (s *S3Store) Load(ctx context.Context, provider string) ([]byte, error) {
	key := s.objectKey(provider)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, asNotFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if wrapped := asNotFound(err); errors.Is(wrapped, ErrBlobNotFound) {
			return nil, wrapped
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, provider string, data []byte) error {
	key := s.objectKey(provider)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) objectKey(provider string) string {
	return path.Join(s.prefix, provider+".json")
}

func asNotFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

// splitEndpoint accepts either a bare host (TLS assumed) or a full
// http(s) URL and returns the host plus whether the scheme is secure.
func splitEndpoint(raw string) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint: %q", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func staticCredentials(accessKeyFile, secretKeyFile string) (*credentials.Credentials, error) {
	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}
	return credentials.NewStaticV4(accessKey, secretKey, ""), nil
}

func readSecretFile(name string) (string, error) {
	data, err := os.ReadFile(strings.TrimSpace(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
