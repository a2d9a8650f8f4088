package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig locates an S3-compatible object store.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// ObjectLoader reads documents stored as s3://bucket/key.
type ObjectLoader struct {
	client *minio.Client
}

// NewObjectLoader connects to the object store. No request is made until the
// first Load.
func NewObjectLoader(cfg ObjectConfig) (*ObjectLoader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("source: object store %s: %w", cfg.Endpoint, err)
	}
	return &ObjectLoader{client: client}, nil
}

// ParseObjectURL splits s3://bucket/key.
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return "", "", domain.NewValidationError("file_path", raw, domain.ErrInvalidInput)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (l *ObjectLoader) Load(ctx context.Context, doc domain.Document) (string, error) {
	bucket, key, err := ParseObjectURL(doc.FilePath)
	if err != nil {
		return "", err
	}
	key = textPath(key)

	obj, err := l.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", domain.Upstream("storage", "get "+key, err)
	}
	defer obj.Close()

	text, err := readText(obj, doc.FilePath)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return "", domain.NewNotFound("object", bucket+"/"+key)
		}
		if errors.Is(err, domain.ErrInvalidInput) {
			return "", err
		}
		return "", domain.Upstream("storage", "read "+key, err)
	}
	return text, nil
}
