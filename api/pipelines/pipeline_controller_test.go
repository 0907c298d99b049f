package pipelines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/middleware/auth"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/equinor/radix-release-api/api/pipelines/repository"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"k8s.io/utils/clock"
)

type testPrincipal struct {
	name string
}

func (p *testPrincipal) IsAuthenticated() bool { return true }
func (p *testPrincipal) Token() string         { return "token" }
func (p *testPrincipal) Id() string            { return p.name }
func (p *testPrincipal) Name() string          { return p.name }

type controllerTestSuite struct {
	suite.Suite
	store  *artifacts.MemoryStore
	engine *Engine
	router *mux.Router
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(controllerTestSuite))
}

func (s *controllerTestSuite) SetupTest() {
	services := &config.Services{Services: []config.ServiceDefinition{{
		Name:       serviceName,
		Branch:     "main",
		Registry:   "repo",
		Containers: []string{containerName},
	}}}
	s.store = artifacts.NewMemoryStore()
	executors := NewExecutors(services, s.store, &fakeBuilder{}, &fakeDeployer{}, clock.RealClock{})
	s.engine = NewEngine(services, repository.NewMemoryRepository(), executors, WithDispatcher(SyncDispatcher{}))
	s.router = mux.NewRouter()
	for _, route := range NewPipelineController(s.engine, s.store).GetRoutes() {
		s.router.HandleFunc(route.Path, route.HandlerFunc).Methods(route.Method)
	}
}

func (s *controllerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithPrincipal(req.Context(), &testPrincipal{name: "dev@example.com"}))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *controllerTestSuite) triggerRun() models.PipelineRun {
	rec := s.do(http.MethodPost, "/services/streamlit-app/triggers", `{"revision":"abc123","ref":"refs/heads/main"}`)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	var run models.PipelineRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &run))
	return run
}

func (s *controllerTestSuite) Test_TriggerRun() {
	run := s.triggerRun()
	s.Equal("dev@example.com", run.TriggeredBy)
	s.Equal("abc123", run.Revision)
	s.Equal(models.RunRunning, run.Status)

	rec := s.do(http.MethodPost, "/services/streamlit-app/triggers", `{"revision":"def456","ref":"main"}`)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *controllerTestSuite) Test_TriggerRun_UntrackedBranchIgnored() {
	rec := s.do(http.MethodPost, "/services/streamlit-app/triggers", `{"revision":"abc123","ref":"refs/heads/feature"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var ignored models.TriggerIgnored
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &ignored))
	s.True(ignored.Ignored)
	s.NotEmpty(ignored.Reason)
}

func (s *controllerTestSuite) Test_TriggerRun_Invalid() {
	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/services/other/triggers", `{"revision":"abc123","ref":"main"}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/services/streamlit-app/triggers", `{"revision":`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/services/streamlit-app/triggers", `{"ref":"main"}`).Code)
}

func (s *controllerTestSuite) Test_GetAndListRuns() {
	run := s.triggerRun()

	rec := s.do(http.MethodGet, "/runs/"+run.ID, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var got models.PipelineRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Len(got.Stages, 3)

	rec = s.do(http.MethodGet, "/services/streamlit-app/runs", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var runs []models.PipelineRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &runs))
	s.Len(runs, 1)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/runs/missing", "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/services/other/runs", "").Code)
}

func (s *controllerTestSuite) Test_DecideApproval() {
	run := s.triggerRun()

	rec := s.do(http.MethodGet, "/services/streamlit-app/approvals", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var pending []PendingApproval
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &pending))
	s.Require().Len(pending, 1)
	decisionPath := "/runs/" + run.ID + "/stages/" + pending[0].Stage.ID + "/decision"

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, decisionPath, `{"decision":"maybe"}`).Code)

	rec = s.do(http.MethodPost, decisionPath, `{"decision":"reject","comment":"wrong revision"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var decided models.PipelineRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &decided))
	s.Equal(models.RunFailed, decided.Status)
	gate, ok := decided.StageByName("approval")
	s.Require().True(ok)
	s.Equal("dev@example.com", gate.Decision.DecidedBy)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, decisionPath, `{"decision":"approve"}`).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/runs/"+run.ID+"/stages/missing/decision", `{"decision":"approve"}`).Code)
}

func (s *controllerTestSuite) Test_CancelRun() {
	run := s.triggerRun()

	rec := s.do(http.MethodPost, "/runs/"+run.ID+"/cancel", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var cancelled models.PipelineRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &cancelled))
	s.Equal(models.RunCancelled, cancelled.Status)
	s.Equal("dev@example.com", cancelled.CancelRequestedBy)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/runs/"+run.ID+"/cancel", "").Code)
}

func (s *controllerTestSuite) Test_GetArtifact() {
	run := s.triggerRun()
	stored, err := s.engine.GetRun(context.Background(), run.ID)
	s.Require().NoError(err)
	build, _ := stored.StageByName("build")
	path := "/runs/" + run.ID + "/stages/" + build.ID + "/artifacts/"

	rec := s.do(http.MethodGet, path+manifest.FileName, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(manifest.ContentType, rec.Header().Get("Content-Type"))
	s.JSONEq(`[{"name":"streamlit-app","imageUri":"repo:abc123"}]`, rec.Body.String())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, path+"missing.json", "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/runs/"+run.ID+"/stages/missing/artifacts/"+manifest.FileName, "").Code)
}
