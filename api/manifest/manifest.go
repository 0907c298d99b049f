package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/google/go-containerregistry/pkg/name"
)

// FileName Name of the build stage artifact holding the manifest
const FileName = "imagedefinitions.json"

// ContentType of a serialized manifest
const ContentType = "application/json"

// ContainerImage Image to run for one named container
// swagger:model ContainerImage
type ContainerImage struct {
	// Name of the container in the service
	//
	// required: true
	// example: streamlit-app
	Name string `json:"name"`

	// ImageURI Fully qualified image reference
	//
	// required: true
	// example: registry.example.com/streamlit-app:abc123
	ImageURI string `json:"imageUri"`
}

// DeploymentManifest Ordered container to image mapping produced by a build
type DeploymentManifest []ContainerImage

// Names Container names in manifest order
func (m DeploymentManifest) Names() []string {
	return slice.Map(m, func(c ContainerImage) string { return c.Name })
}

// Image Returns the image for a container name
func (m DeploymentManifest) Image(containerName string) (string, bool) {
	for _, c := range m {
		if c.Name == containerName {
			return c.ImageURI, true
		}
	}
	return "", false
}

// Validate Checks the manifest is structurally usable. Container names are checked against the
// target service at deploy time.
func (m DeploymentManifest) Validate() error {
	if len(m) == 0 {
		return errors.New("manifest has no container images")
	}
	var errs []error
	seen := make(map[string]struct{}, len(m))
	for i, c := range m {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("entry %d: container name is empty", i))
		}
		if _, ok := seen[c.Name]; ok {
			errs = append(errs, fmt.Errorf("entry %d: duplicate container %s", i, c.Name))
		}
		seen[c.Name] = struct{}{}
		if _, err := name.ParseReference(c.ImageURI); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: invalid image %q: %w", i, c.ImageURI, err))
		}
	}
	return errors.Join(errs...)
}

// Marshal Serializes to the flat list form [{"name":..,"imageUri":..}]
func (m DeploymentManifest) Marshal() ([]byte, error) {
	if m == nil {
		m = DeploymentManifest{}
	}
	return json.Marshal([]ContainerImage(m))
}

// Parse Reads the flat list form and validates it
func Parse(data []byte) (DeploymentManifest, error) {
	var m DeploymentManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
