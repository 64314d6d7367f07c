package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage checks the behaviour every backend must share.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := s.ReadPath(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.WritePath(ctx, "a/b/result", []byte(`{"v":1}`)))
	got, err := s.ReadPath(ctx, "a/b/result")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	// Overwrite replaces content
	require.NoError(t, s.WritePath(ctx, "a/b/result", []byte(`{"v":2}`)))
	got, err = s.ReadPath(ctx, "a/b/result")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	if d, ok := s.(Deleter); ok {
		require.NoError(t, d.Delete(ctx, "a/b/result"))
		_, err = s.ReadPath(ctx, "a/b/result")
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	exerciseStorage(t, s)

	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.WritePath(ctx, "k", buf))
	buf[0] = 'x'
	got, err := s.ReadPath(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, []string{"k"}, s.Keys())
}

func TestMemoryStorage_ConcurrentWriters(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WritePath(ctx, "shared", []byte("x"))
			_, _ = s.ReadPath(ctx, "shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"shared"}, s.Keys())
}

func TestLocalFileSystem(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalFileSystem(dir)
	require.NoError(t, err)
	exerciseStorage(t, s)

	resolved, err := s.ResolvePath("x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x", "y"), resolved)

	// Absolute keys are honoured as-is
	other := filepath.Join(t.TempDir(), "abs-result")
	require.NoError(t, s.WritePath(context.Background(), other, []byte("abs")))
	got, err := s.ReadPath(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "abs", string(got))

	_, err = s.ResolvePath("")
	assert.Error(t, err)
}

func TestSQLStorage_SQLite(t *testing.T) {
	s, err := Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.(io.Closer).Close() })
	exerciseStorage(t, s)
}

func TestBadgerStorage_InMemory(t *testing.T) {
	s, err := OpenBadgerStorage("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStorage(t, s)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(content))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	content, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = content
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Storage(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	s := NewS3Storage(client, "bucket", "/runs/")
	exerciseStorage(t, s)

	require.NoError(t, s.WritePath(context.Background(), "k", []byte("v")))
	client.mu.Lock()
	_, ok := client.objects["bucket/runs/k"]
	client.mu.Unlock()
	assert.True(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory:")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	dir := t.TempDir()
	s, err = Open(ctx, "file://"+dir)
	require.NoError(t, err)
	require.IsType(t, &LocalFileSystem{}, s)
	assert.Equal(t, dir, s.(*LocalFileSystem).BasePath())

	s, err = Open(ctx, dir)
	require.NoError(t, err)
	assert.IsType(t, &LocalFileSystem{}, s)

	_, err = Open(ctx, "ftp://example.com/results")
	assert.ErrorContains(t, err, "unsupported storage scheme")

	_, err = Open(ctx, "")
	assert.Error(t, err)
}

func TestBlockID(t *testing.T) {
	base, err := NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, BlockIDOf(base))
	assert.Nil(t, BlockIDOf(nil))

	id := uuid.New()
	bound := WithBlockID(base, id)
	require.NotNil(t, BlockIDOf(bound))
	assert.Equal(t, id, *BlockIDOf(bound))

	// Capabilities of the wrapped storage survive
	want, _ := base.ResolvePath("k")
	got, err := bound.(PathResolver).ResolvePath("k")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	exerciseStorage(t, bound)
}
