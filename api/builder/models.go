package builder

import (
	"context"
	"fmt"

	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/internal/config"
)

// BuildRequest Build the image of a service at a source revision
type BuildRequest struct {
	ServiceName string
	Revision    string
}

// BuildResult A published image and the manifest pointing at it
type BuildResult struct {
	ServiceName string
	Revision    string
	// ImageURI Reference of the published image, tagged with the revision
	ImageURI string
	// Digest of the published image manifest
	Digest   string
	Manifest manifest.DeploymentManifest
}

// Interface Turns a source revision into a published container image
type Interface interface {
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// ServiceLookup Resolves service definitions by name
type ServiceLookup interface {
	Get(serviceName string) (config.ServiceDefinition, bool)
}

// BuildError The revision could not be turned into an image. Retrying the same revision gives the same result.
type BuildError struct {
	ServiceName string
	Revision    string
	Reason      string
	Err         error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("build of %s at %s failed: %s", e.ServiceName, e.Revision, e.Reason)
	}
	return fmt.Sprintf("build of %s at %s failed: %s: %v", e.ServiceName, e.Revision, e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
