package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds construction parameters for an S3-compatible export bucket
// (AWS S3 or MinIO). Credentials fall back to the default chain when the
// static key pair is empty.
type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// HTTPClient overrides the SDK transport. Nil keeps the default.
	HTTPClient *http.Client
}

// object metadata keys; S3 lowercases them on the way back
const (
	s3MetaFileName  = "file-name"
	s3MetaTrialID   = "trial-id"
	s3MetaFormat    = "format"
	s3MetaHash      = "sha256"
	s3MetaCreatedAt = "created-at"
	s3MetaCreatedBy = "created-by"
)

// S3BlobStore keeps blobs as objects under a single bucket and prefix, with
// the descriptive metadata carried as user-defined object metadata.
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3BlobStore builds the SDK client from cfg.
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blobstore: s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3BlobStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3BlobStore) objectKey(key string) string {
	return s.prefix + key
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3BlobStore) Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(meta.Key)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata: map[string]string{
			s3MetaFileName:  meta.FileName,
			s3MetaTrialID:   meta.TrialID,
			s3MetaFormat:    meta.Format,
			s3MetaHash:      meta.Hash,
			s3MetaCreatedAt: meta.CreatedAt.Format(time.RFC3339Nano),
			s3MetaCreatedBy: meta.CreatedBy,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", meta.Key, err)
	}
	out := meta
	return &out, nil
}

func fromObject(key, contentType string, size *int64, md map[string]string) *Metadata {
	meta := &Metadata{
		Key:         key,
		FileName:    md[s3MetaFileName],
		ContentType: contentType,
		Size:        aws.ToInt64(size),
		TrialID:     md[s3MetaTrialID],
		Format:      md[s3MetaFormat],
		Hash:        md[s3MetaHash],
		CreatedBy:   md[s3MetaCreatedBy],
		Tags:        map[string]string{},
	}
	if t, err := time.Parse(time.RFC3339Nano, md[s3MetaCreatedAt]); err == nil {
		meta.CreatedAt = t
	}
	return meta
}

func (s *S3BlobStore) Download(ctx context.Context, key string) (io.ReadCloser, *Metadata, error) {
	if err := ValidKey(key); err != nil {
		return nil, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.Body, fromObject(key, aws.ToString(out.ContentType), out.ContentLength, out.Metadata), nil
}

func (s *S3BlobStore) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return fromObject(key, aws.ToString(out.ContentType), out.ContentLength, out.Metadata), nil
}

// Delete reports ErrBlobNotFound for a missing key; S3 itself deletes
// missing objects without complaint.
func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.GetMetadata(ctx, key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3BlobStore) List(ctx context.Context, params SearchParams) ([]*Metadata, int, error) {
	var matched []*Metadata
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range out.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if ValidKey(key) != nil {
				continue
			}
			meta, err := s.GetMetadata(ctx, key)
			if errors.Is(err, ErrBlobNotFound) {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			if matches(meta, params) {
				matched = append(matched, meta)
			}
		}
	}
	items, total := page(matched, params)
	return items, total, nil
}
