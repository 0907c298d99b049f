package artifacts

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

var (
	// ErrArtifactExists returned when a producer writes a key that has already been written
	ErrArtifactExists = errors.New("artifact already exists")
	// ErrArtifactNotFound returned when a key has never been written
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Ref An immutable reference to an artifact written by a stage execution
// swagger:model ArtifactRef
type Ref struct {
	// Key in the artifact store, <runId>/<stage>/<name>
	//
	// example: 01HZX3/build/imagedefinitions.json
	Key string `json:"key"`

	// Name of the artifact within the producing stage
	//
	// example: imagedefinitions.json
	Name string `json:"name"`

	// ContentType of the artifact
	//
	// example: application/json
	ContentType string `json:"contentType"`

	// Digest of the content
	//
	// example: sha256:9f86d08...
	Digest string `json:"digest"`

	// Size in bytes
	Size int64 `json:"size"`
}

// Store A durable write-once key to blob map
type Store interface {
	// Put writes data under key. A second Put for the same key fails with ErrArtifactExists.
	Put(ctx context.Context, key, contentType string, data []byte) (Ref, error)
	// Get reads the data written under key, ErrArtifactNotFound if never written.
	Get(ctx context.Context, key string) ([]byte, Ref, error)
}

// Key Builds the store key for an artifact produced by a stage of a run
func Key(runId, stageName, artifactName string) string {
	return path.Join(runId, stageName, artifactName)
}

// NameFromKey Returns the artifact name part of a key
func NameFromKey(key string) string {
	return path.Base(key)
}

func newRef(key, contentType string, data []byte) (Ref, error) {
	digest, size, err := v1.SHA256(bytes.NewReader(data))
	if err != nil {
		return Ref{}, err
	}
	return Ref{
		Key:         key,
		Name:        NameFromKey(key),
		ContentType: contentType,
		Digest:      digest.String(),
		Size:        size,
	}, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return errors.New("invalid artifact key")
	}
	return nil
}
