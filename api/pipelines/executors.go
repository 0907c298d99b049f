package pipelines

import (
	"context"
	"encoding/json"
	"fmt"

	radixutils "github.com/equinor/radix-common/utils"
	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/builder"
	"github.com/equinor/radix-release-api/api/deployer"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"
)

const (
	// SourceArtifactName Snapshot record written by the source stage
	SourceArtifactName = "source.json"
	jsonContentType    = "application/json"
)

// SourceSnapshot Content of the source stage artifact
type SourceSnapshot struct {
	ServiceName string `json:"serviceName"`
	Repository  string `json:"repository"`
	Revision    string `json:"revision"`
	Branch      string `json:"branch"`
	RecordedAt  string `json:"recordedAt"`
}

// NewExecutors Executors for the default topology. The approval stage has none, it waits for a decision.
func NewExecutors(services ServiceLookup, store artifacts.Store, imageBuilder builder.Interface, serviceDeployer deployer.Interface, clk clock.PassiveClock) map[models.StageKind]Executor {
	return map[models.StageKind]Executor{
		models.StageSource: &sourceExecutor{services: services, store: store, clock: clk},
		models.StageBuild:  &buildExecutor{store: store, builder: imageBuilder},
		models.StageDeploy: &deployExecutor{store: store, deployer: serviceDeployer},
	}
}

type sourceExecutor struct {
	services ServiceLookup
	store    artifacts.Store
	clock    clock.PassiveClock
}

func (x *sourceExecutor) Execute(ctx context.Context, run *models.PipelineRun, stage *models.StageExecution) ([]artifacts.Ref, error) {
	service, ok := x.services.Get(run.ServiceName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", run.ServiceName, ErrServiceNotFound)
	}
	data, err := json.Marshal(SourceSnapshot{
		ServiceName: run.ServiceName,
		Repository:  service.Source.Repository,
		Revision:    run.Revision,
		Branch:      run.Branch,
		RecordedAt:  radixutils.FormatTimestamp(x.clock.Now()),
	})
	if err != nil {
		return nil, err
	}
	ref, err := x.store.Put(ctx, artifacts.Key(run.ID, stage.ID, SourceArtifactName), jsonContentType, data)
	if err != nil {
		return nil, err
	}
	return []artifacts.Ref{ref}, nil
}

type buildExecutor struct {
	store   artifacts.Store
	builder builder.Interface
}

func (x *buildExecutor) Execute(ctx context.Context, run *models.PipelineRun, stage *models.StageExecution) ([]artifacts.Ref, error) {
	result, err := x.builder.Build(ctx, builder.BuildRequest{ServiceName: run.ServiceName, Revision: run.Revision})
	if err != nil {
		return nil, err
	}
	data, err := result.Manifest.Marshal()
	if err != nil {
		return nil, err
	}
	ref, err := x.store.Put(ctx, artifacts.Key(run.ID, stage.ID, manifest.FileName), manifest.ContentType, data)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("image", result.ImageURI).Str("digest", result.Digest).Msg("Image published")
	return []artifacts.Ref{ref}, nil
}

type deployExecutor struct {
	store    artifacts.Store
	deployer deployer.Interface
}

func (x *deployExecutor) Execute(ctx context.Context, run *models.PipelineRun, stage *models.StageExecution) ([]artifacts.Ref, error) {
	input, ok := slice.FindFirst(stage.Inputs, func(ref artifacts.Ref) bool { return ref.Name == manifest.FileName })
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("stage %s has no %s input", stage.Name, manifest.FileName)}
	}
	data, _, err := x.store.Get(ctx, input.Key)
	if err != nil {
		return nil, err
	}
	images, err := manifest.Parse(data)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid deployment manifest", Err: err}
	}
	if err = x.deployer.Deploy(ctx, run.ServiceName, images); err != nil {
		return nil, err
	}
	return []artifacts.Ref{}, nil
}
