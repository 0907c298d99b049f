package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore_WriteOnce(t *testing.T) {
	store := NewMemoryStore()
	key := Key("run1", "build", "imagedefinitions.json")

	ref, err := store.Put(context.Background(), key, "application/json", []byte(`[{"name":"a","imageUri":"r/a:1"}]`))
	require.NoError(t, err)
	assert.Equal(t, "run1/build/imagedefinitions.json", ref.Key)
	assert.Equal(t, "imagedefinitions.json", ref.Name)
	assert.Equal(t, int64(33), ref.Size)
	assert.Contains(t, ref.Digest, "sha256:")

	_, err = store.Put(context.Background(), key, "application/json", []byte(`[]`))
	assert.ErrorIs(t, err, ErrArtifactExists)

	data, got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"a","imageUri":"r/a:1"}]`, string(data))
	assert.Equal(t, ref, got)
}

func Test_MemoryStore_ReturnedDataIsACopy(t *testing.T) {
	store := NewMemoryStore()
	input := []byte("abc")
	_, err := store.Put(context.Background(), "run1/source/source.json", "text/plain", input)
	require.NoError(t, err)
	input[0] = 'x'

	data, _, err := store.Get(context.Background(), "run1/source/source.json")
	require.NoError(t, err)
	data[1] = 'y'

	again, _, err := store.Get(context.Background(), "run1/source/source.json")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func Test_MemoryStore_NotFoundAndInvalidKeys(t *testing.T) {
	store := NewMemoryStore()
	_, _, err := store.Get(context.Background(), "run1/build/missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	for _, key := range []string{"", "/abs/key", "run1/../other"} {
		_, err = store.Put(context.Background(), key, "text/plain", nil)
		assert.Error(t, err, key)
	}
}

func Test_MinioConfig_Validate(t *testing.T) {
	assert.Error(t, MinioConfig{}.Validate())
	assert.NoError(t, MinioConfig{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"}.Validate())

	_, err := NewMinioStore(MinioConfig{Endpoint: "minio:9000"})
	assert.Error(t, err)
}
