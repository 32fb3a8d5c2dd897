package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/webcron/internal/api"
	"github.com/jonesrussell/webcron/internal/database"
	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/logger"
	"github.com/jonesrussell/webcron/internal/schedule"
	"github.com/jonesrussell/webcron/internal/scheduler"
)

type fakeJobStore struct {
	jobs map[string]*domain.CronJob
}

func newFakeJobStore(jobs ...*domain.CronJob) *fakeJobStore {
	store := &fakeJobStore{jobs: make(map[string]*domain.CronJob)}
	for _, job := range jobs {
		store.jobs[job.ID] = job
	}
	return store
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.CronJob) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.CronJob, error) {
	job, exists := s.jobs[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) List(_ context.Context) ([]*domain.CronJob, error) {
	jobs := make([]*domain.CronJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (s *fakeJobStore) Update(_ context.Context, job *domain.CronJob) error {
	if _, exists := s.jobs[job.ID]; !exists {
		return domain.ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) SetActive(_ context.Context, id string, active bool) error {
	job, exists := s.jobs[id]
	if !exists {
		return domain.ErrNotFound
	}
	job.IsActive = active
	return nil
}

func (s *fakeJobStore) Delete(_ context.Context, id string) error {
	if _, exists := s.jobs[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *fakeJobStore) Count(_ context.Context) (int, error) {
	return len(s.jobs), nil
}

type fakeLogStore struct {
	logs []*domain.ExecutionLog
}

func (s *fakeLogStore) List(
	_ context.Context, filter database.LogFilter, page, limit int,
) ([]*domain.ExecutionLog, int, error) {
	var matched []*domain.ExecutionLog
	for _, entry := range s.logs {
		if filter.JobID != "" && entry.JobID != filter.JobID {
			continue
		}
		if filter.Status != "" && string(entry.Status) != filter.Status {
			continue
		}
		copied := *entry
		matched = append(matched, &copied)
	}
	return matched, len(matched), nil
}

func (s *fakeLogStore) Stats(
	_ context.Context, _, _ *time.Time,
) (*domain.LogStats, error) {
	return &domain.LogStats{PerJob: []domain.ExecutionStats{}}, nil
}

type fakeTagStore struct {
	byJob map[string][]string
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{byJob: make(map[string][]string)}
}

func (s *fakeTagStore) ListAll(_ context.Context) ([]*domain.Tag, error) {
	seen := make(map[string]bool)
	var tags []*domain.Tag
	for _, names := range s.byJob {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				tags = append(tags, &domain.Tag{ID: name, Name: name})
			}
		}
	}
	if tags == nil {
		tags = []*domain.Tag{}
	}
	return tags, nil
}

func (s *fakeTagStore) NamesForJob(_ context.Context, jobID string) ([]string, error) {
	names := s.byJob[jobID]
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *fakeTagStore) ReplaceJobTags(_ context.Context, jobID string, names []string) error {
	s.byJob[jobID] = names
	return nil
}

type fakeEngine struct {
	registered map[string]bool
	result     *domain.ExecutionLog
	execErr    error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{registered: make(map[string]bool)}
}

func (e *fakeEngine) Register(job *domain.CronJob) error {
	e.registered[job.ID] = job.IsActive
	return nil
}

func (e *fakeEngine) Update(_ context.Context, jobID string) error {
	e.registered[jobID] = true
	return nil
}

func (e *fakeEngine) Remove(jobID string) {
	delete(e.registered, jobID)
}

func (e *fakeEngine) ExecuteManually(
	_ context.Context, jobID string,
) (*domain.ExecutionLog, error) {
	if e.execErr != nil {
		return nil, e.execErr
	}
	if e.result != nil {
		return e.result, nil
	}
	return &domain.ExecutionLog{
		JobID:             jobID,
		Status:            domain.ExecutionSuccess,
		TriggeredManually: true,
	}, nil
}

func (e *fakeEngine) JobState(string) (*scheduler.JobState, bool) { return nil, false }
func (e *fakeEngine) JobStates() []scheduler.JobState             { return nil }

type fakeSweeper struct {
	deleted int64
	days    *int
}

func (s *fakeSweeper) SweepNow(_ context.Context, retentionDays *int) (int64, error) {
	s.days = retentionDays
	return s.deleted, nil
}

type testServer struct {
	server  *api.Server
	jobs    *fakeJobStore
	logs    *fakeLogStore
	tags    *fakeTagStore
	engine  *fakeEngine
	sweeper *fakeSweeper
}

func newTestServer(t *testing.T, jobs ...*domain.CronJob) *testServer {
	t.Helper()

	ts := &testServer{
		jobs:    newFakeJobStore(jobs...),
		logs:    &fakeLogStore{},
		tags:    newFakeTagStore(),
		engine:  newFakeEngine(),
		sweeper: &fakeSweeper{},
	}
	ts.server = api.NewServer(
		logger.NewNoop(),
		ts.jobs, ts.logs, ts.tags, ts.engine, ts.sweeper,
		schedule.NewParser(time.UTC),
		":0",
	)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func activeJob(id string) *domain.CronJob {
	return &domain.CronJob{
		ID:            id,
		Name:          "ping",
		URL:           "https://example.com/ping",
		Method:        http.MethodGet,
		Schedule:      "0 0 * * *",
		ScheduleType:  domain.ScheduleTypeCron,
		IsActive:      true,
		ExecutionMode: domain.ExecutionModeSequential,
		MaxConcurrent: 1,
	}
}

func TestCreateJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"name":         "ping",
		"url":          "https://example.com/ping",
		"schedule":     "30s",
		"scheduleType": "repeat",
		"tags":         []string{"infra"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ping", resp.Name)
	assert.Equal(t, http.MethodGet, resp.Method)
	assert.True(t, resp.IsActive)
	assert.Equal(t, []string{"infra"}, resp.Tags)
	assert.Len(t, resp.NextRuns, 5)

	assert.Len(t, ts.jobs.jobs, 1)
	assert.Len(t, ts.engine.registered, 1)
}

func TestCreateJobRejectsBadMethod(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"name":     "ping",
		"url":      "https://example.com/ping",
		"method":   "DELETE",
		"schedule": "30s",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "method must be GET or POST")
}

func TestCreateJobRejectsShortRepeatInterval(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"name":         "ping",
		"url":          "https://example.com/ping",
		"schedule":     "3s",
		"scheduleType": "repeat",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Minimum interval is 5 seconds")
}

func TestGetJobNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateJobReschedules(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))

	rec := ts.do(t, http.MethodPut, "/api/jobs/job-1", map[string]any{
		"schedule":     "10m",
		"scheduleType": "repeat",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10m", ts.jobs.jobs["job-1"].Schedule)
	assert.True(t, ts.engine.registered["job-1"])
}

func TestToggleJobDisables(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	ts.engine.registered["job-1"] = true

	rec := ts.do(t, http.MethodPut, "/api/jobs/job-1/toggle", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ts.jobs.jobs["job-1"].IsActive)
	assert.NotContains(t, ts.engine.registered, "job-1")
}

func TestDeleteJobRemovesTimer(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	ts.engine.registered["job-1"] = true

	rec := ts.do(t, http.MethodDelete, "/api/jobs/job-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.jobs.jobs)
	assert.Empty(t, ts.engine.registered)
}

func TestTriggerJob(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job executed")
}

func TestTriggerJobRateLimited(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp struct {
		Error      string  `json:"error"`
		RetryAfter float64 `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrRateLimited.Error(), resp.Error)
	assert.Greater(t, resp.RetryAfter, 0.0)
	assert.LessOrEqual(t, resp.RetryAfter, 10.0)
}

func TestTriggerUnknownJobStartsNoCooldown(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The failed trigger must not have consumed the rate-limit token.
	ts.jobs.jobs["job-1"] = activeJob("job-1")
	rec = ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerStoredInactiveJobStartsNoCooldown(t *testing.T) {
	job := activeJob("job-1")
	job.IsActive = false
	ts := newTestServer(t, job)

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not active")

	ts.jobs.jobs["job-1"].IsActive = true
	rec = ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerRefundsTokenWhenEngineRejects(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	ts.engine.execErr = domain.ErrAlreadyRunning

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already running")

	// Once the running execution drains, a retrigger must not be rate
	// limited by the rejected attempt.
	ts.engine.execErr = nil
	rec = ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerJobFailureReturns500(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	message := "HTTP 503: Service Unavailable"
	ts.engine.result = &domain.ExecutionLog{
		JobID:             "job-1",
		Status:            domain.ExecutionFailed,
		ErrorMessage:      &message,
		TriggeredManually: true,
	}

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "HTTP 503")
}

func TestTriggerInactiveJob(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	ts.engine.execErr = domain.ErrInactive

	rec := ts.do(t, http.MethodPost, "/api/jobs/job-1/trigger", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not active")
}

func TestJobLogsCollapsesBodies(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	longBody := strings.Repeat("x", 600)
	ts.logs.logs = []*domain.ExecutionLog{{
		ID:           "log-1",
		JobID:        "job-1",
		Status:       domain.ExecutionSuccess,
		ResponseBody: &longBody,
	}}

	rec := ts.do(t, http.MethodGet, "/api/jobs/job-1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Logs []domain.ExecutionLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	require.NotNil(t, resp.Logs[0].ResponseBody)
	assert.Len(t, *resp.Logs[0].ResponseBody, 500+len(domain.TruncationSuffix))
	assert.True(t, strings.HasSuffix(*resp.Logs[0].ResponseBody, domain.TruncationSuffix))
}

func TestJobLogsExpandKeepsFullBody(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))
	longBody := strings.Repeat("x", 600)
	ts.logs.logs = []*domain.ExecutionLog{{
		ID:           "log-1",
		JobID:        "job-1",
		Status:       domain.ExecutionSuccess,
		ResponseBody: &longBody,
	}}

	rec := ts.do(t, http.MethodGet, "/api/jobs/job-1/logs?expand=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Logs []domain.ExecutionLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	assert.Len(t, *resp.Logs[0].ResponseBody, 600)
}

func TestJobLogsRejectsBadStatusFilter(t *testing.T) {
	ts := newTestServer(t, activeJob("job-1"))

	rec := ts.do(t, http.MethodGet, "/api/jobs/job-1/logs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogCleanupWithOverride(t *testing.T) {
	ts := newTestServer(t)
	ts.sweeper.deleted = 7

	rec := ts.do(t, http.MethodPost, "/api/logs/cleanup", map[string]any{
		"retentionDays": 14,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":7`)
	require.NotNil(t, ts.sweeper.days)
	assert.Equal(t, 14, *ts.sweeper.days)
}

func TestExportImportRoundTrip(t *testing.T) {
	job := activeJob("job-1")
	ts := newTestServer(t, job)
	ts.tags.byJob["job-1"] = []string{"infra"}

	rec := ts.do(t, http.MethodGet, "/api/data/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc api.ExportDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, api.ExportFormatVersion, doc.Metadata.Version)
	require.Len(t, doc.Data.CronJobs, 1)
	assert.Equal(t, []string{"infra"}, doc.Data.CronJobs[0].TagNames)

	// Import into a fresh server.
	fresh := newTestServer(t)
	rec = fresh.do(t, http.MethodPost, "/api/data/import", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"created":1`)

	imported, exists := fresh.jobs.jobs["job-1"]
	require.True(t, exists)
	assert.Equal(t, job.Name, imported.Name)
	assert.Equal(t, []string{"infra"}, fresh.tags.byJob["job-1"])
}

func TestValidateImportFlagsBadJobs(t *testing.T) {
	ts := newTestServer(t)

	doc := api.ExportDocument{
		Metadata: api.ExportMetadata{Version: api.ExportFormatVersion},
		Data: api.ExportData{
			CronJobs: []api.JobExport{{
				CronJob: domain.CronJob{
					ID:           "job-1",
					Name:         "bad",
					URL:          "not-a-url",
					Method:       http.MethodGet,
					Schedule:     "whenever",
					ScheduleType: domain.ScheduleTypeCron,
				},
			}},
		},
	}

	rec := ts.do(t, http.MethodPost, "/api/data/validate", doc)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Valid    bool     `json:"valid"`
		Problems []string `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Problems)
}

func TestSchedulerStatusCountsStoredJobs(t *testing.T) {
	inactive := activeJob("job-2")
	inactive.IsActive = false
	ts := newTestServer(t, activeJob("job-1"), inactive)

	rec := ts.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scheduled int `json:"scheduled"`
		TotalJobs int `json:"totalJobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Scheduled)
	assert.Equal(t, 2, resp.TotalJobs)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
