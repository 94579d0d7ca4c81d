package blobstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeS3Client is an in-memory stand-in for *s3.Client, satisfying the
// narrow S3Client interface S3Blobstore depends on.
type fakeS3Client struct {
	objects map[string][]byte
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: make(map[string][]byte)}
}

func (f *fakeS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3BlobstorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewS3Blobstore(newFakeS3Client(), "bucket")

	require.NoError(t, b.Put(ctx, "k1", types.NewBlobBytes([]byte("hello"))))

	v, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v.Bytes())

	present, err := b.IsPresent(ctx, "k1")
	require.NoError(t, err)
	require.True(t, present)
}

func TestS3BlobstoreGetMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	b := NewS3Blobstore(newFakeS3Client(), "bucket")

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	present, err := b.IsPresent(ctx, "missing")
	require.NoError(t, err)
	require.False(t, present)
}
