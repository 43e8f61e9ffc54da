package objectstore

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tless/tless-bench/pkg/cerrors"
)

const completionKey = "word-count/few-files/mapper-results/aggregated-results.txt"

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "http://10.96.4.20:9000", Endpoint("10.96.4.20\n", 9000))
	assert.Equal(t, "https://minio.local", Endpoint("https://minio.local", 9000))
}

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(Options{})
	assert.Equal(t, cerrors.ErrorTypeConfiguration, cerrors.GetErrorType(err))
}

func TestWaitForKey(t *testing.T) {
	t.Run("key already present", func(t *testing.T) {
		stub, client := newS3Stub(t, "tless")
		stub.put("tless", completionKey, "done")

		before := time.Now()
		at, found, err := client.WaitForKey(context.Background(), "tless", completionKey)
		require.NoError(t, err)
		assert.True(t, found)
		assert.False(t, at.Before(before))
	})

	t.Run("key appears later", func(t *testing.T) {
		stub, client := newS3Stub(t, "tless")
		go func() {
			time.Sleep(20 * time.Millisecond)
			stub.put("tless", completionKey, "done")
		}()
		_, found, err := client.WaitForKey(context.Background(), "tless", completionKey)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Greater(t, stub.heads, 1)
	})

	t.Run("timeout", func(t *testing.T) {
		_, client := newS3Stub(t, "tless")
		at, found, err := client.WaitForKey(context.Background(), "tless", completionKey)
		require.NoError(t, err)
		assert.False(t, found)
		assert.True(t, at.IsZero())
	})

	t.Run("server error", func(t *testing.T) {
		stub, client := newS3Stub(t, "tless")
		stub.failHead = http.StatusForbidden
		_, found, err := client.WaitForKey(context.Background(), "tless", completionKey)
		require.Error(t, err)
		assert.False(t, found)
		_, code := cerrors.GetRootCauseAndErrorCode(err)
		assert.Equal(t, cerrors.ErrorTypeObjectStore, code)
	})

	t.Run("cancelled", func(t *testing.T) {
		_, client := newS3Stub(t, "tless")
		client.keyTimeout = 0
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, found, err := client.WaitForKey(ctx, "tless", completionKey)
		assert.False(t, found)
		assert.Equal(t, cerrors.ErrorTypeCancelled, cerrors.Classify(err))
	})
}

func TestClearDir(t *testing.T) {
	stub, client := newS3Stub(t, "tless")
	stub.put("tless", "word-count/few-files/mapper-results/aggregated-results.txt", "a")
	stub.put("tless", "word-count/few-files/mapper-results/mapper-1.txt", "b")
	stub.put("tless", "word-count/few-files/inputs/file-1.txt", "c")

	require.NoError(t, client.ClearDir(context.Background(), "tless", "word-count/few-files/mapper-results/"))
	assert.Equal(t, []string{"word-count/few-files/inputs/file-1.txt"}, stub.keys("tless"))

	keys, err := client.ListKeys(context.Background(), "tless", "word-count/few-files/mapper-results/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, client.ClearDir(context.Background(), "tless", "nothing/here/"))
	require.NoError(t, client.ClearBucket(context.Background(), "tless"))
	assert.Empty(t, stub.keys("tless"))
}

func TestBuckets(t *testing.T) {
	_, client := newS3Stub(t)
	require.NoError(t, client.EnsureBucket(context.Background(), "tless"))
	require.NoError(t, client.EnsureBucket(context.Background(), "tless"))

	names, err := client.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tless"}, names)
}

func TestUploadDir(t *testing.T) {
	stub, client := newS3Stub(t, "tless")
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inputs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs", "file-1.txt"), []byte("the quick brown fox"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs", "file-2.txt"), []byte("jumps over"), 0644))

	require.NoError(t, client.UploadDir(context.Background(), "tless", dir, "word-count/few-files", true))
	assert.Equal(t, []string{"word-count/few-files/inputs/file-1.txt", "word-count/few-files/inputs/file-2.txt"}, stub.keys("tless"))

	stub.put("tless", "word-count/few-files/inputs/file-1.txt", "kept")
	require.NoError(t, client.UploadDir(context.Background(), "tless", dir, "word-count/few-files", false))
	stub.mu.Lock()
	assert.Equal(t, "kept", string(stub.buckets["tless"]["word-count/few-files/inputs/file-1.txt"]))
	stub.mu.Unlock()

	err := client.UploadDir(context.Background(), "tless", filepath.Join(dir, "absent"), "x", true)
	_, code := cerrors.GetRootCauseAndErrorCode(err)
	assert.Equal(t, cerrors.ErrorTypeObjectStore, code)
}
