package builder

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRef(t *testing.T, ref string) name.Reference {
	t.Helper()
	parsed, err := name.ParseReference(ref, name.Insecure)
	require.NoError(t, err)
	return parsed
}

type fakeFetcher struct {
	archives map[string][]byte
	err      error
}

func (f *fakeFetcher) Open(_ context.Context, _ config.SourceDefinition, revision string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.archives[revision]
	if !ok {
		return nil, errRevisionNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type services map[string]config.ServiceDefinition

func (s services) Get(serviceName string) (config.ServiceDefinition, bool) {
	def, ok := s[serviceName]
	return def, ok
}

func sourceArchive(t *testing.T, root string, files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: root + "/", Typeflag: tar.TypeDir, Mode: 0755}))
	for fileName, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: root + "/" + fileName, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func setupTestRegistry(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(registry.New())
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func Test_Build_PublishesRevisionTagAndMovesLatest(t *testing.T) {
	host := setupTestRegistry(t)
	def := config.ServiceDefinition{
		Name:       "streamlit-app",
		Registry:   host + "/streamlit-app",
		Containers: []string{"streamlit-app"},
		Source:     config.SourceDefinition{Repository: "https://github.com/example/streamlit-docker-app"},
	}
	fetcher := &fakeFetcher{archives: map[string][]byte{
		"abc123": sourceArchive(t, "streamlit-docker-app-abc123", map[string]string{"app.py": "import streamlit", "requirements.txt": "streamlit"}),
		"def456": sourceArchive(t, "streamlit-docker-app-def456", map[string]string{"app.py": "import streamlit as st"}),
	}}
	sut := NewRegistryBuilder(services{def.Name: def}, fetcher, WithInsecureRegistry(true))

	result, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, host+"/streamlit-app:abc123", result.ImageURI)
	require.Len(t, result.Manifest, 1)
	assert.Equal(t, "streamlit-app", result.Manifest[0].Name)
	assert.Equal(t, result.ImageURI, result.Manifest[0].ImageURI)

	published, err := remote.Image(parseRef(t, result.ImageURI))
	require.NoError(t, err)
	digest, err := published.Digest()
	require.NoError(t, err)
	assert.Equal(t, result.Digest, digest.String())
	cfg, err := published.ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.Config.Labels[revisionLabel])
	assert.Equal(t, SourceDir, cfg.Config.WorkingDir)
	layers, err := published.Layers()
	require.NoError(t, err)
	assert.Len(t, layers, 1)

	latest, err := remote.Image(parseRef(t, host+"/streamlit-app:latest"))
	require.NoError(t, err)
	latestDigest, err := latest.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, latestDigest)

	second, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "def456"})
	require.NoError(t, err)
	assert.NotEqual(t, result.Digest, second.Digest)

	original, err := remote.Image(parseRef(t, result.ImageURI))
	require.NoError(t, err)
	originalDigest, err := original.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, originalDigest, "revision tag must not move when another revision is built")
}

func Test_Build_SameRevisionTwiceGivesSameImage(t *testing.T) {
	host := setupTestRegistry(t)
	def := config.ServiceDefinition{Name: "streamlit-app", Registry: host + "/streamlit-app", Containers: []string{"streamlit-app", "worker"}}
	archive := sourceArchive(t, "src", map[string]string{"app.py": "print()"})
	sut := NewRegistryBuilder(services{def.Name: def}, &fakeFetcher{archives: map[string][]byte{"abc123": archive}}, WithInsecureRegistry(true))

	first, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
	require.NoError(t, err)
	second, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, []string{"streamlit-app", "worker"}, second.Manifest.Names())
}

func Test_Build_Failures(t *testing.T) {
	def := config.ServiceDefinition{Name: "streamlit-app", Registry: "registry.example.com/streamlit-app", Containers: []string{"streamlit-app"}}

	t.Run("unknown service", func(t *testing.T) {
		sut := NewRegistryBuilder(services{}, &fakeFetcher{})
		_, err := sut.Build(context.Background(), BuildRequest{ServiceName: "other", Revision: "abc123"})
		var buildErr *BuildError
		require.ErrorAs(t, err, &buildErr)
		assert.Equal(t, "unknown service", buildErr.Reason)
	})

	t.Run("unknown revision", func(t *testing.T) {
		sut := NewRegistryBuilder(services{def.Name: def}, &fakeFetcher{archives: map[string][]byte{}})
		_, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "nope"})
		var buildErr *BuildError
		require.ErrorAs(t, err, &buildErr)
		assert.ErrorIs(t, err, errRevisionNotFound)
	})

	t.Run("empty archive", func(t *testing.T) {
		sut := NewRegistryBuilder(services{def.Name: def}, &fakeFetcher{archives: map[string][]byte{"abc123": sourceArchive(t, "src", nil)}})
		_, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
		var buildErr *BuildError
		assert.ErrorAs(t, err, &buildErr)
	})

	t.Run("source unavailable is transient", func(t *testing.T) {
		sut := NewRegistryBuilder(services{def.Name: def}, &fakeFetcher{err: transient.Wrap("fetch source", errors.New("503"))})
		_, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
		assert.True(t, transient.Is(err))
		var buildErr *BuildError
		assert.False(t, errors.As(err, &buildErr))
	})

	t.Run("registry unavailable is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()
		broken := def
		broken.Registry = strings.TrimPrefix(server.URL, "http://") + "/streamlit-app"
		archive := sourceArchive(t, "src", map[string]string{"app.py": "print()"})
		sut := NewRegistryBuilder(services{def.Name: broken}, &fakeFetcher{archives: map[string][]byte{"abc123": archive}}, WithInsecureRegistry(true))

		_, err := sut.Build(context.Background(), BuildRequest{ServiceName: "streamlit-app", Revision: "abc123"})
		assert.True(t, transient.Is(err), "got %v", err)
	})
}

func Test_HTTPSourceFetcher(t *testing.T) {
	archive := []byte("archive-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tar.gz/abc123":
			_, _ = w.Write(archive)
		case "/tar.gz/flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	source := config.SourceDefinition{ArchiveUrl: server.URL + "/tar.gz/" + RevisionPlaceholder}
	fetcher := NewHTTPSourceFetcher(nil)

	body, err := fetcher.Open(context.Background(), source, "abc123")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, archive, data)

	_, err = fetcher.Open(context.Background(), source, "flaky")
	assert.True(t, transient.Is(err))

	_, err = fetcher.Open(context.Background(), source, "missing")
	assert.ErrorIs(t, err, errRevisionNotFound)
	assert.False(t, transient.Is(err))
}

func Test_RewriteArchive_PlainTar(t *testing.T) {
	var src bytes.Buffer
	tw := tar.NewWriter(&src)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "repo/app.py", Typeflag: tar.TypeReg, Mode: 0644, Size: 2}))
	_, _ = tw.Write([]byte("hi"))
	require.NoError(t, tw.Close())

	var dst bytes.Buffer
	files, err := rewriteArchive(&src, &dst, SourceDir)
	require.NoError(t, err)
	assert.Equal(t, 1, files)

	tr := tar.NewReader(&dst)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "app/app.py", hdr.Name)
}
