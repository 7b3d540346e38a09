package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("audio/wav"),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3StoreAppliesPrefixAndMapsNotFound(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	store := newS3WithAPI(api, "beats-assets", "/media/")

	exists, err := store.Exists(ctx, "beats/wav/a.wav")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Open(ctx, "beats/wav/a.wav")
	require.True(t, errors.Is(err, ErrNotFound))

	body := []byte("RIFF")
	require.NoError(t, store.Put(ctx, "beats/wav/a.wav", bytes.NewReader(body), int64(len(body)), "audio/wav"))
	require.Equal(t, "media/beats/wav/a.wav", aws.ToString(api.lastPut.Key))
	require.Equal(t, "beats-assets", aws.ToString(api.lastPut.Bucket))
	require.Equal(t, "audio/wav", aws.ToString(api.lastPut.ContentType))

	exists, err = store.Exists(ctx, "beats/wav/a.wav")
	require.NoError(t, err)
	require.True(t, exists)

	obj, err := store.Open(ctx, "beats/wav/a.wav")
	require.NoError(t, err)
	defer obj.Body.Close()
	require.Equal(t, int64(4), obj.Size)
	require.NoError(t, store.Ping(ctx))
}

func TestS3StoreRejectsTraversal(t *testing.T) {
	store := newS3WithAPI(newFakeS3(), "b", "")
	_, err := store.Exists(context.Background(), "../etc/passwd")
	require.True(t, errors.Is(err, ErrInvalidKey))
}
