package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	coretypes "github.com/facebook/sapling-sub046/pkg/types"
)

// S3Client is the subset of *s3.Client this package depends on, so tests
// can substitute a fake.
type S3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Blobstore is a durable, replicated Blobstore backend storing each
// key as one S3 object, grounded on real Go source-control systems
// (e.g. antgroup-hugescm) that use aws-sdk-go-v2/service/s3 for blob
// storage rather than hand-rolling a REST client.
type S3Blobstore struct {
	client S3Client
	bucket string
}

// NewS3Blobstore wraps an S3 client and target bucket as a Blobstore.
func NewS3Blobstore(client S3Client, bucket string) *S3Blobstore {
	return &S3Blobstore{client: client, bucket: bucket}
}

func (s *S3Blobstore) Get(ctx context.Context, key coretypes.BlobKey) (coretypes.BlobBytes, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobstoreRequestDuration, "s3", "get")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		if isNotFound(err) {
			metrics.BlobstoreRequestsTotal.WithLabelValues("s3", "get", "miss").Inc()
			return coretypes.BlobBytes{}, false, nil
		}
		metrics.BlobstoreRequestsTotal.WithLabelValues("s3", "get", "error").Inc()
		return coretypes.BlobBytes{}, false, errkind.Wrap(errkind.Unavailable, "s3_get", string(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return coretypes.BlobBytes{}, false, errkind.Wrap(errkind.Unavailable, "s3_get_read", string(key), err)
	}

	metrics.BlobstoreRequestsTotal.WithLabelValues("s3", "get", "hit").Inc()
	metrics.BlobstoreBytesTotal.WithLabelValues("s3", "get").Add(float64(len(data)))
	return coretypes.NewBlobBytes(data), true, nil
}

func (s *S3Blobstore) Put(ctx context.Context, key coretypes.BlobKey, value coretypes.BlobBytes) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobstoreRequestDuration, "s3", "put")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
		Body:   bytes.NewReader(value.Bytes()),
	})
	if err != nil {
		metrics.BlobstoreRequestsTotal.WithLabelValues("s3", "put", "error").Inc()
		return errkind.Wrap(errkind.Unavailable, "s3_put", string(key), err)
	}
	metrics.BlobstoreRequestsTotal.WithLabelValues("s3", "put", "ok").Inc()
	metrics.BlobstoreBytesTotal.WithLabelValues("s3", "put").Add(float64(value.Len()))
	return nil
}

func (s *S3Blobstore) IsPresent(ctx context.Context, key coretypes.BlobKey) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errkind.Wrap(errkind.Unavailable, "s3_head", string(key), err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
