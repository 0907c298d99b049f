package builder

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/equinor/radix-release-api/api/utils/logs"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
)

// RevisionPlaceholder Replaced with the revision in an archive URL template
const RevisionPlaceholder = "{revision}"

var errRevisionNotFound = errors.New("revision not found")

// SourceFetcher Opens a snapshot archive of the source at a revision
type SourceFetcher interface {
	Open(ctx context.Context, source config.SourceDefinition, revision string) (io.ReadCloser, error)
}

// HTTPSourceFetcher Downloads source archives from a URL template, e.g. a forge tarball endpoint
type HTTPSourceFetcher struct {
	client *http.Client
}

func NewHTTPSourceFetcher(client *http.Client) *HTTPSourceFetcher {
	if client == nil {
		client = &http.Client{}
	}
	client.Transport = logs.Logger(logs.WithComponent("source"))(client.Transport)
	return &HTTPSourceFetcher{client: client}
}

func (f *HTTPSourceFetcher) Open(ctx context.Context, source config.SourceDefinition, revision string) (io.ReadCloser, error) {
	archiveUrl := strings.ReplaceAll(source.ArchiveUrl, RevisionPlaceholder, url.PathEscape(revision))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveUrl, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transient.Wrap("fetch source", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	_ = resp.Body.Close()
	err = fmt.Errorf("GET %s: %s", archiveUrl, resp.Status)
	switch {
	case transient.RetryableStatus(resp.StatusCode):
		return nil, transient.Wrap("fetch source", err)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %v", errRevisionNotFound, err)
	default:
		return nil, err
	}
}

// rewriteArchive Copies a tar or tar.gz snapshot into an uncompressed tar rooted at dir, dropping the
// single top-level directory forge archives wrap their content in.
func rewriteArchive(src io.Reader, dst io.Writer, dir string) (int, error) {
	reader, err := maybeGunzip(src)
	if err != nil {
		return 0, err
	}
	root := strings.TrimPrefix(dir, "/")
	tr := tar.NewReader(reader)
	tw := tar.NewWriter(dst)

	files := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read source archive: %w", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		name := stripFirstComponent(hdr.Name)
		if name == "" {
			continue
		}
		hdr.Name = path.Join(root, name)
		if hdr.Typeflag == tar.TypeLink {
			hdr.Linkname = path.Join(root, stripFirstComponent(hdr.Linkname))
		}
		if hdr.Typeflag == tar.TypeDir {
			hdr.Name += "/"
		}
		if err = tw.WriteHeader(hdr); err != nil {
			return files, err
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err = io.Copy(tw, tr); err != nil {
				return files, err
			}
			files++
		}
	}
	return files, tw.Close()
}

func maybeGunzip(r io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("read source archive: %w", err)
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(buffered)
	}
	return buffered, nil
}

func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return ""
}
