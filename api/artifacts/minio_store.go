package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

func (c MinioConfig) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("minio endpoint is required"))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		errs = append(errs, errors.New("minio credentials are required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("minio bucket is required"))
	}
	return errors.Join(errs...)
}

// MinioStore Keeps artifacts in an S3 compatible bucket
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = &MinioStore{}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket Creates the artifact bucket when missing
func (s *MinioStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("artifact bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

// Put writes the object unless the key is taken. The existence check and the write are two requests;
// keys embed the run id and stage, so only a replayed stage execution can race with itself.
func (s *MinioStore) Put(ctx context.Context, key, contentType string, data []byte) (Ref, error) {
	if err := validateKey(key); err != nil {
		return Ref{}, err
	}
	ref, err := newRef(key, contentType, data)
	if err != nil {
		return Ref{}, err
	}

	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return Ref{}, fmt.Errorf("%s: %w", key, ErrArtifactExists)
	case !isNotFound(err):
		return Ref{}, fmt.Errorf("stat artifact %s: %w", key, err)
	}

	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"digest": ref.Digest},
	}
	if _, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return Ref{}, fmt.Errorf("put artifact %s: %w", key, err)
	}
	return ref, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, Ref, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Ref{}, fmt.Errorf("get artifact %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, Ref{}, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
		}
		return nil, Ref{}, fmt.Errorf("read artifact %s: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		return nil, Ref{}, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	ref, err := newRef(key, info.ContentType, data)
	if err != nil {
		return nil, Ref{}, err
	}
	return data, ref, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
