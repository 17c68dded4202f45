package export

import (
	"bytes"
	"context"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// ObjectConfig holds S3-compatible connection settings.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	Secure    bool
}

// ObjectDeliverer uploads artifacts to an S3-compatible bucket.
type ObjectDeliverer struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectDeliverer creates a MinIO client from cfg.
func NewObjectDeliverer(cfg ObjectConfig) (*ObjectDeliverer, error) {
	if cfg.Endpoint == "" {
		return nil, eris.New("object deliver: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, eris.New("object deliver: bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "object deliver: create client")
	}
	return &ObjectDeliverer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (d *ObjectDeliverer) key(name string) string {
	return path.Join(d.prefix, path.Base(name))
}

// Deliver implements Deliverer.
func (d *ObjectDeliverer) Deliver(ctx context.Context, a Artifact) error {
	_, err := d.client.PutObject(ctx, d.bucket, d.key(a.Name), bytes.NewReader(a.Data), int64(len(a.Data)),
		minio.PutObjectOptions{ContentType: a.ContentType})
	if err != nil {
		return eris.Wrapf(err, "object deliver: put %s", d.key(a.Name))
	}
	return nil
}
