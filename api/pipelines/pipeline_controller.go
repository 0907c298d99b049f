package pipelines

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/middleware/auth"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/equinor/radix-release-api/api/utils"
	controllerModels "github.com/equinor/radix-release-api/models"
	"github.com/gorilla/mux"
)

const (
	servicePath = "/services/{serviceName}"
	runPath     = "/runs/{runId}"
	stagePath   = runPath + "/stages/{stageId}"
)

type pipelineController struct {
	*controllerModels.DefaultController
	engine *Engine
	store  artifacts.Store
}

// NewPipelineController Constructor
func NewPipelineController(engine *Engine, store artifacts.Store) controllerModels.Controller {
	return &pipelineController{engine: engine, store: store}
}

// GetRoutes List the supported routes of this controller
func (c *pipelineController) GetRoutes() controllerModels.Routes {
	return controllerModels.Routes{
		controllerModels.Route{
			Path:        servicePath + "/triggers",
			Method:      http.MethodPost,
			HandlerFunc: c.TriggerRun,
		},
		controllerModels.Route{
			Path:                      servicePath + "/runs",
			Method:                    http.MethodGet,
			HandlerFunc:               c.ListRuns,
			AllowUnauthenticatedUsers: true,
		},
		controllerModels.Route{
			Path:                      servicePath + "/approvals",
			Method:                    http.MethodGet,
			HandlerFunc:               c.ListPendingApprovals,
			AllowUnauthenticatedUsers: true,
		},
		controllerModels.Route{
			Path:                      runPath,
			Method:                    http.MethodGet,
			HandlerFunc:               c.GetRun,
			AllowUnauthenticatedUsers: true,
		},
		controllerModels.Route{
			Path:        runPath + "/cancel",
			Method:      http.MethodPost,
			HandlerFunc: c.CancelRun,
		},
		controllerModels.Route{
			Path:        stagePath + "/decision",
			Method:      http.MethodPost,
			HandlerFunc: c.DecideApproval,
		},
		controllerModels.Route{
			Path:                      stagePath + "/artifacts/{artifactName}",
			Method:                    http.MethodGet,
			HandlerFunc:               c.GetArtifact,
			AllowUnauthenticatedUsers: true,
		},
	}
}

// TriggerRun Starts a pipeline run for a source change
func (c *pipelineController) TriggerRun(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /services/{serviceName}/triggers pipeline triggerRun
	// ---
	// summary: Starts a pipeline run for a source change on the tracked branch
	// parameters:
	// - name: serviceName
	//   in: path
	//   description: name of the service
	//   type: string
	//   required: true
	// - name: triggerRequest
	//   in: body
	//   description: the change event
	//   required: true
	//   schema:
	//       "$ref": "#/definitions/TriggerRequest"
	// responses:
	//   "202":
	//     description: "Run started"
	//     schema:
	//        "$ref": "#/definitions/PipelineRun"
	//   "200":
	//     description: "Ref not tracked, change ignored"
	//     schema:
	//        "$ref": "#/definitions/TriggerIgnored"
	//   "404":
	//     description: "Service not found"
	//   "409":
	//     description: "A run is already active for the service"
	serviceName := mux.Vars(r)["serviceName"]

	var request models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		c.ErrorResponse(w, r, utils.ValidationError("TriggerRequest", fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	run, err := c.engine.Trigger(r.Context(), ChangeEvent{
		ServiceName: serviceName,
		Revision:    request.Revision,
		Ref:         request.Ref,
		TriggeredBy: auth.GetOriginator(r.Context()),
	})
	if errors.Is(err, ErrBranchNotTracked) {
		c.JSONResponse(w, r, models.TriggerIgnored{Ignored: true, Reason: err.Error()})
		return
	}
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponseWithCode(w, r, http.StatusAccepted, run)
}

// ListRuns Lists the pipeline runs of a service
func (c *pipelineController) ListRuns(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /services/{serviceName}/runs pipeline listRuns
	// ---
	// summary: Lists the pipeline runs of a service, newest first
	// parameters:
	// - name: serviceName
	//   in: path
	//   description: name of the service
	//   type: string
	//   required: true
	// responses:
	//   "200":
	//     description: "Successful operation"
	//     schema:
	//        type: "array"
	//        items:
	//           "$ref": "#/definitions/PipelineRun"
	//   "404":
	//     description: "Service not found"
	runs, err := c.engine.ListRuns(r.Context(), mux.Vars(r)["serviceName"])
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponse(w, r, runs)
}

// ListPendingApprovals Lists approval gates waiting for a decision
func (c *pipelineController) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /services/{serviceName}/approvals pipeline listPendingApprovals
	// ---
	// summary: Lists the approval gates of a service waiting for a decision
	// parameters:
	// - name: serviceName
	//   in: path
	//   description: name of the service
	//   type: string
	//   required: true
	// responses:
	//   "200":
	//     description: "Successful operation"
	//   "404":
	//     description: "Service not found"
	approvals, err := c.engine.PendingApprovals(r.Context(), mux.Vars(r)["serviceName"])
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponse(w, r, approvals)
}

// GetRun Gets a pipeline run
func (c *pipelineController) GetRun(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /runs/{runId} pipeline getRun
	// ---
	// summary: Gets a pipeline run with its stages
	// parameters:
	// - name: runId
	//   in: path
	//   type: string
	//   required: true
	// responses:
	//   "200":
	//     description: "Successful operation"
	//     schema:
	//        "$ref": "#/definitions/PipelineRun"
	//   "404":
	//     description: "Not found"
	run, err := c.engine.GetRun(r.Context(), mux.Vars(r)["runId"])
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponse(w, r, run)
}

// CancelRun Cancels an active pipeline run
func (c *pipelineController) CancelRun(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /runs/{runId}/cancel pipeline cancelRun
	// ---
	// summary: Cancels an active pipeline run. A stage already executing completes, but its result is discarded
	// parameters:
	// - name: runId
	//   in: path
	//   type: string
	//   required: true
	// responses:
	//   "200":
	//     description: "Run cancelled"
	//     schema:
	//        "$ref": "#/definitions/PipelineRun"
	//   "404":
	//     description: "Not found"
	//   "409":
	//     description: "Run is not active"
	run, err := c.engine.Cancel(r.Context(), mux.Vars(r)["runId"], auth.GetOriginator(r.Context()))
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponse(w, r, run)
}

// DecideApproval Approves or rejects a waiting gate
func (c *pipelineController) DecideApproval(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /runs/{runId}/stages/{stageId}/decision pipeline decideApproval
	// ---
	// summary: Approves or rejects a waiting approval gate. A gate accepts one decision
	// parameters:
	// - name: runId
	//   in: path
	//   type: string
	//   required: true
	// - name: stageId
	//   in: path
	//   type: string
	//   required: true
	// - name: decisionRequest
	//   in: body
	//   required: true
	//   schema:
	//       "$ref": "#/definitions/DecisionRequest"
	// responses:
	//   "200":
	//     description: "Decision recorded"
	//     schema:
	//        "$ref": "#/definitions/PipelineRun"
	//   "400":
	//     description: "Invalid decision"
	//   "404":
	//     description: "Not found"
	//   "409":
	//     description: "Gate already decided or not waiting"
	vars := mux.Vars(r)

	var request models.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		c.ErrorResponse(w, r, utils.ValidationError("DecisionRequest", fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if request.Decision != models.DecisionApprove && request.Decision != models.DecisionReject {
		c.ErrorResponse(w, r, utils.ValidationError("DecisionRequest", fmt.Sprintf("decision must be %s or %s", models.DecisionApprove, models.DecisionReject)))
		return
	}

	run, err := c.engine.Decide(r.Context(), vars["runId"], vars["stageId"], models.ApprovalDecision{
		Approved:  request.Decision == models.DecisionApprove,
		Comment:   request.Comment,
		DecidedBy: auth.GetOriginator(r.Context()),
	})
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.JSONResponse(w, r, run)
}

// GetArtifact Gets the content of an artifact produced by a stage
func (c *pipelineController) GetArtifact(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /runs/{runId}/stages/{stageId}/artifacts/{artifactName} pipeline getArtifact
	// ---
	// summary: Gets the raw content of an artifact produced by a stage
	// parameters:
	// - name: runId
	//   in: path
	//   type: string
	//   required: true
	// - name: stageId
	//   in: path
	//   type: string
	//   required: true
	// - name: artifactName
	//   in: path
	//   type: string
	//   required: true
	// produces:
	// - application/json
	// - application/octet-stream
	// responses:
	//   "200":
	//     description: "Artifact content"
	//   "404":
	//     description: "Not found"
	vars := mux.Vars(r)
	artifactName := vars["artifactName"]

	run, err := c.engine.GetRun(r.Context(), vars["runId"])
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	stage, ok := run.Stage(vars["stageId"])
	if !ok {
		c.ErrorResponse(w, r, ApiError(fmt.Errorf("%s: %w", vars["stageId"], ErrStageNotFound)))
		return
	}
	ref, ok := slice.FindFirst(stage.Outputs, func(ref artifacts.Ref) bool { return ref.Name == artifactName })
	if !ok {
		c.ErrorResponse(w, r, ApiError(fmt.Errorf("%s: %w", artifactName, ErrArtifactNotFound)))
		return
	}
	data, stored, err := c.store.Get(r.Context(), ref.Key)
	if err != nil {
		c.ErrorResponse(w, r, ApiError(err))
		return
	}
	c.ByteArrayResponse(w, r, stored.ContentType, data)
}
