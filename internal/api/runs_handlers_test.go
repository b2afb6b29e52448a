package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/store"
)

type mockRunRepo struct {
	mock.Mock
}

func (m *mockRunRepo) UpsertRunStart(ctx context.Context, runID uuid.UUID, at time.Time) error {
	return m.Called(ctx, runID, at).Error(0)
}

func (m *mockRunRepo) CompleteRun(ctx context.Context, runID uuid.UUID, at time.Time, status store.RunStatus, errMsg *string) error {
	return m.Called(ctx, runID, at, status, errMsg).Error(0)
}

func (m *mockRunRepo) UpsertSourceStats(ctx context.Context, runID uuid.UUID, source string, delta store.SourceDelta, at time.Time) error {
	return m.Called(ctx, runID, source, delta, at).Error(0)
}

func (m *mockRunRepo) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(store.Run), args.Error(1)
}

func (m *mockRunRepo) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	args := m.Called(ctx, status, limit, offset)
	runs, _ := args.Get(0).([]store.Run)
	return runs, args.Error(1)
}

func (m *mockRunRepo) ListRunSources(ctx context.Context, runID uuid.UUID) ([]store.SourceStats, error) {
	args := m.Called(ctx, runID)
	stats, _ := args.Get(0).([]store.SourceStats)
	return stats, args.Error(1)
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRunsHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{}
	success := store.RunSuccess
	run := store.Run{ID: uuid.New(), Status: store.RunSuccess, StartedAt: time.Now().Add(-time.Hour)}
	repo.On("ListRuns", mock.Anything, &success, 10, 0).Return([]store.Run{run}, nil)
	handler := NewRunsHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?status=success&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, run.ID.String(), body.Runs[0].ID)
	repo.AssertExpectations(t)
}

func TestRunsHandlerListRunsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(&mockRunRepo{}, nil)
	for _, target := range []string{"/v1/runs?limit=-1", "/v1/runs?offset=x", "/v1/runs?status=paused"} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunsHandlerClampsLimit(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{}
	repo.On("ListRuns", mock.Anything, (*store.RunStatus)(nil), maxRunLimit, 5).Return([]store.Run{}, nil)
	rec := httptest.NewRecorder()
	NewRunsHandler(repo, nil).ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=100000&offset=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestRunsHandlerGetRun(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{}
	known, missing, broken := uuid.New(), uuid.New(), uuid.New()
	repo.On("GetRun", mock.Anything, known).Return(store.Run{ID: known, Status: store.RunRunning}, nil)
	repo.On("GetRun", mock.Anything, missing).Return(store.Run{}, store.ErrNotFound)
	repo.On("GetRun", mock.Anything, broken).Return(store.Run{}, errors.New("db down"))
	handler := NewRunsHandler(repo, nil)

	cases := map[string]int{
		known.String():   http.StatusOK,
		missing.String(): http.StatusNotFound,
		broken.String():  http.StatusInternalServerError,
		"not-a-uuid":     http.StatusBadRequest,
	}
	for id, want := range cases {
		rec := httptest.NewRecorder()
		req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil), id)
		handler.GetRun(rec, req)
		require.Equal(t, want, rec.Code, id)
	}
}

func TestRunsHandlerListRunSources(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{}
	runID := uuid.New()
	repo.On("ListRunSources", mock.Anything, runID).Return([]store.SourceStats{
		{RunID: runID, Source: "quran", State: "completed", Committed: 6236},
	}, nil)
	rec := httptest.NewRecorder()
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/x/sources", nil), runID.String())
	NewRunsHandler(repo, nil).ListRunSources(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"committed":6236`)
}

func TestRunsHandlerWithoutRepository(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(nil, nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
