package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

type ArchiveSettings struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether object storage archival is configured.
func (s ArchiveSettings) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Archiver uploads report documents to S3-compatible object storage.
type Archiver interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// objectStore is the part of *minio.Client the archiver uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type archiver struct {
	client   objectStore
	settings ArchiveSettings
	endpoint string
}

// NewArchiver connects to the object store and makes sure the bucket exists.
func NewArchiver(ctx context.Context, settings ArchiveSettings) (Archiver, error) {
	if !settings.Enabled() {
		return nil, errors.New("report archive is not configured")
	}
	cli, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return newArchiver(ctx, cli, settings, cli.EndpointURL().Host)
}

func newArchiver(ctx context.Context, client objectStore, settings ArchiveSettings, endpoint string) (Archiver, error) {
	exists, err := client.BucketExists(ctx, settings.Bucket)
	if err != nil {
		return nil, domain.NewTransportError("object storage", "bucket exists", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, settings.Bucket, minio.MakeBucketOptions{Region: settings.Region}); err != nil {
			return nil, domain.NewTransportError("object storage", "make bucket", err)
		}
	}
	return &archiver{client: client, settings: settings, endpoint: endpoint}, nil
}

func (a *archiver) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(a.settings.Prefix, name)
	_, err := a.client.PutObject(ctx, a.settings.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", domain.NewTransportError("object storage", "put object", err)
	}

	scheme := "http"
	if a.settings.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, a.endpoint, a.settings.Bucket, key), nil
}
