package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/utils/logs"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/rs/zerolog/log"
)

const (
	// SourceDir Directory in the image holding the source snapshot
	SourceDir = "/app"

	revisionLabel = "org.opencontainers.image.revision"
	sourceLabel   = "org.opencontainers.image.source"
	serviceLabel  = "radix-release.equinor.com/service"
)

type Option func(b *RegistryBuilder)

// WithInsecureRegistry Allow plain http and self-signed registries
func WithInsecureRegistry(insecure bool) Option {
	return func(b *RegistryBuilder) {
		b.insecure = insecure
	}
}

// WithKeychain Credentials for pulling base images and pushing builds
func WithKeychain(keychain authn.Keychain) Option {
	return func(b *RegistryBuilder) {
		b.keychain = keychain
	}
}

func WithPlatform(platform v1.Platform) Option {
	return func(b *RegistryBuilder) {
		b.platform = platform
	}
}

// RegistryBuilder Assembles images from a base image and a source snapshot layer, and publishes them
type RegistryBuilder struct {
	services ServiceLookup
	fetcher  SourceFetcher
	insecure bool
	keychain authn.Keychain
	platform v1.Platform
}

var _ Interface = &RegistryBuilder{}

func NewRegistryBuilder(services ServiceLookup, fetcher SourceFetcher, opts ...Option) *RegistryBuilder {
	b := &RegistryBuilder{
		services: services,
		fetcher:  fetcher,
		keychain: authn.DefaultKeychain,
		platform: v1.Platform{OS: "linux", Architecture: "amd64"},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build Fetches the source at the revision, assembles the image and publishes it under the revision tag.
// The latest alias is moved only after the revision tag is complete in the registry.
func (b *RegistryBuilder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	fail := func(reason string, err error) error {
		return &BuildError{ServiceName: req.ServiceName, Revision: req.Revision, Reason: reason, Err: err}
	}

	service, ok := b.services.Get(req.ServiceName)
	if !ok {
		return nil, fail("unknown service", nil)
	}
	tag := RevisionTag(req.Revision)
	if tag == "" {
		return nil, fail("revision is empty", nil)
	}
	logger := log.Ctx(ctx).With().Str("serviceName", req.ServiceName).Str("revision", req.Revision).Logger()
	ctx = logger.WithContext(ctx)

	revisionRef, err := name.NewTag(fmt.Sprintf("%s:%s", service.Registry, tag), b.nameOptions()...)
	if err != nil {
		return nil, fail("invalid image reference", err)
	}
	latestRef := revisionRef.Context().Tag(LatestTag)

	layerFile, err := b.fetchSourceLayer(ctx, service.Source, req.Revision)
	if err != nil {
		if transient.Is(err) {
			return nil, err
		}
		return nil, fail("fetch source", err)
	}
	defer func() { _ = os.Remove(layerFile) }()

	img, err := b.assemble(ctx, service.BaseImage, layerFile, map[string]string{
		revisionLabel: req.Revision,
		sourceLabel:   service.Source.Repository,
		serviceLabel:  service.Name,
	})
	if err != nil {
		if transient.Is(err) {
			return nil, err
		}
		return nil, fail("assemble image", err)
	}

	logger.Debug().Msgf("Pushing image %s", revisionRef.String())
	if err = remote.Write(revisionRef, img, b.remoteOptions(ctx)...); err != nil {
		return nil, b.classifyRegistryError(err, fail, "push image")
	}
	digest, err := img.Digest()
	if err != nil {
		return nil, fail("image digest", err)
	}
	if err = remote.Tag(latestRef, img, b.remoteOptions(ctx)...); err != nil {
		return nil, b.classifyRegistryError(err, fail, "tag latest")
	}
	logger.Info().Str("digest", digest.String()).Msgf("Published image %s", revisionRef.String())

	imageURI := revisionRef.String()
	return &BuildResult{
		ServiceName: req.ServiceName,
		Revision:    req.Revision,
		ImageURI:    imageURI,
		Digest:      digest.String(),
		Manifest: slice.Map(service.Containers, func(container string) manifest.ContainerImage {
			return manifest.ContainerImage{Name: container, ImageURI: imageURI}
		}),
	}, nil
}

func (b *RegistryBuilder) fetchSourceLayer(ctx context.Context, source config.SourceDefinition, revision string) (string, error) {
	archive, err := b.fetcher.Open(ctx, source, revision)
	if err != nil {
		return "", err
	}
	defer func() { _ = archive.Close() }()

	file, err := os.CreateTemp("", "source-*.tar")
	if err != nil {
		return "", err
	}
	files, err := rewriteArchive(archive, file, SourceDir)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && files == 0 {
		err = errors.New("source archive contains no files")
	}
	if err != nil {
		_ = os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

func (b *RegistryBuilder) assemble(ctx context.Context, baseImage, layerFile string, labels map[string]string) (v1.Image, error) {
	base, err := b.baseImage(ctx, baseImage)
	if err != nil {
		return nil, err
	}

	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return os.Open(layerFile)
	})
	if err != nil {
		return nil, fmt.Errorf("create source layer: %w", err)
	}
	img, err := mutate.AppendLayers(base, layer)
	if err != nil {
		return nil, fmt.Errorf("append source layer: %w", err)
	}

	configFile, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("read image config: %w", err)
	}
	configFile = configFile.DeepCopy()
	if configFile.OS == "" {
		configFile.OS = b.platform.OS
		configFile.Architecture = b.platform.Architecture
	}
	if configFile.Config.Labels == nil {
		configFile.Config.Labels = map[string]string{}
	}
	for k, v := range labels {
		configFile.Config.Labels[k] = v
	}
	configFile.Config.WorkingDir = SourceDir
	return mutate.ConfigFile(img, configFile)
}

func (b *RegistryBuilder) baseImage(ctx context.Context, baseImage string) (v1.Image, error) {
	if baseImage == "" {
		return empty.Image, nil
	}
	ref, err := name.ParseReference(baseImage, b.nameOptions()...)
	if err != nil {
		return nil, fmt.Errorf("invalid base image: %w", err)
	}
	img, err := remote.Image(ref, append(b.remoteOptions(ctx), remote.WithPlatform(b.platform))...)
	if err != nil {
		if isRetryableRegistryError(err) {
			return nil, transient.Wrap("pull base image", err)
		}
		return nil, fmt.Errorf("pull base image %s: %w", baseImage, err)
	}
	return img, nil
}

func (b *RegistryBuilder) nameOptions() []name.Option {
	if b.insecure {
		return []name.Option{name.Insecure}
	}
	return nil
}

func (b *RegistryBuilder) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(b.keychain),
		remote.WithTransport(logs.Logger(logs.WithComponent("registry"))(remote.DefaultTransport)),
	}
}

func (b *RegistryBuilder) classifyRegistryError(err error, fail func(string, error) error, op string) error {
	if isRetryableRegistryError(err) {
		return transient.Wrap(op, err)
	}
	return fail(op, err)
}

func isRetryableRegistryError(err error) bool {
	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		return transient.RetryableStatus(transportErr.StatusCode)
	}
	return transient.IsNetworkError(err)
}
