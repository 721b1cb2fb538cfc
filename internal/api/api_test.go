package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/storage/sqlite"
	"github.com/carvelab/ingest/internal/types"
)

type fakeController struct {
	calls []string
	err   error
}

func (c *fakeController) Pause(_ context.Context, jobID string) error {
	c.calls = append(c.calls, "pause:"+jobID)
	return c.err
}

func (c *fakeController) Resume(_ context.Context, jobID string) error {
	c.calls = append(c.calls, "resume:"+jobID)
	return c.err
}

func (c *fakeController) Cancel(_ context.Context, jobID string) error {
	c.calls = append(c.calls, "cancel:"+jobID)
	return c.err
}

func newTestServer(t *testing.T) (storage.Storage, *fakeController, *httptest.Server) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := &fakeController{}
	srv := httptest.NewServer(NewHandler(Deps{Store: store, Controller: ctrl}))
	t.Cleanup(srv.Close)
	return store, ctrl, srv
}

func seedJob(t *testing.T, store storage.Storage, status types.JobStatus) *types.ImportJob {
	t.Helper()
	job := &types.ImportJob{
		ID:         uuid.NewString(),
		SourceType: types.SourceFolder,
		SourcePath: "/designs",
		Options:    types.DefaultProcessingOptions(),
		Status:     types.JobPending,
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	if status != types.JobPending {
		require.NoError(t, store.TransitionJob(context.Background(), job.ID, types.JobPending, status))
		job.Status = status
	}
	return job
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestListJobsFiltersByStatus(t *testing.T) {
	store, _, srv := newTestServer(t)
	seedJob(t, store, types.JobPending)
	running := seedJob(t, store, types.JobScanning)

	var jobs []*types.ImportJob
	resp := getJSON(t, srv.URL+"/jobs", &jobs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, jobs, 2)

	jobs = nil
	resp = getJSON(t, srv.URL+"/jobs?status=scanning", &jobs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, jobs, 1)
	assert.Equal(t, running.ID, jobs[0].ID)

	resp = getJSON(t, srv.URL+"/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobDetail(t *testing.T) {
	store, _, srv := newTestServer(t)
	job := seedJob(t, store, types.JobPending)

	var got types.ImportJob
	resp := getJSON(t, srv.URL+"/jobs/"+job.ID, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "/designs", got.SourcePath)

	resp = getJSON(t, srv.URL+"/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListItemsAndLogs(t *testing.T) {
	ctx := context.Background()
	store, _, srv := newTestServer(t)
	job := seedJob(t, store, types.JobPending)

	items := []*types.ImportItem{
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg", Filename: "a.svg", FileType: "svg", SizeBytes: 10},
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "b.svg", Filename: "b.svg", FileType: "svg", SizeBytes: 20},
	}
	require.NoError(t, store.CreateItems(ctx, items))
	logs := []*types.ImportLog{
		{ID: uuid.NewString(), JobID: job.ID, ItemID: items[0].ID, SourcePath: "a.svg"},
		{ID: uuid.NewString(), JobID: job.ID, ItemID: items[1].ID, SourcePath: "b.svg"},
	}
	require.NoError(t, store.CreateLogs(ctx, logs))

	var gotItems []*types.ImportItem
	resp := getJSON(t, srv.URL+"/jobs/"+job.ID+"/items", &gotItems)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, gotItems, 2)

	gotItems = nil
	resp = getJSON(t, srv.URL+"/jobs/"+job.ID+"/items?status=pending&limit=1", &gotItems)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, gotItems, 1)

	var gotLogs []*types.ImportLog
	resp = getJSON(t, srv.URL+"/jobs/"+job.ID+"/logs", &gotLogs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, gotLogs, 2)

	resp = getJSON(t, srv.URL+"/jobs/"+uuid.NewString()+"/items", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaryAggregatesLogs(t *testing.T) {
	ctx := context.Background()
	store, _, srv := newTestServer(t)
	job := seedJob(t, store, types.JobPending)

	item := &types.ImportItem{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg", Filename: "a.svg", FileType: "svg", SizeBytes: 100}
	require.NoError(t, store.CreateItems(ctx, []*types.ImportItem{item}))
	entry := &types.ImportLog{ID: uuid.NewString(), JobID: job.ID, ItemID: item.ID, SourcePath: "a.svg", SizeBytes: 100}
	require.NoError(t, store.CreateLogs(ctx, []*types.ImportLog{entry}))

	now := time.Now().UTC()
	require.NoError(t, store.MarkLogProcessing(ctx, item.ID, now))
	entry.Status = types.LogSucceeded
	entry.StartedAt = &now
	require.NoError(t, store.FinalizeLog(ctx, entry))

	var summary types.LogSummary
	resp := getJSON(t, srv.URL+"/jobs/"+job.ID+"/summary", &summary)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByStatus[types.LogSucceeded])
	assert.Equal(t, int64(100), summary.TotalBytes)
}

func TestControlEndpoints(t *testing.T) {
	store, ctrl, srv := newTestServer(t)
	job := seedJob(t, store, types.JobPending)

	for _, action := range []string{"pause", "resume", "cancel"} {
		resp := postJSON(t, srv.URL+"/jobs/"+job.ID+"/"+action)
		assert.Equal(t, http.StatusOK, resp.StatusCode, action)
	}
	assert.Equal(t, []string{
		"pause:" + job.ID,
		"resume:" + job.ID,
		"cancel:" + job.ID,
	}, ctrl.calls)

	resp := postJSON(t, srv.URL+"/jobs/"+uuid.NewString()+"/pause")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctrl.err = storage.ErrConflict
	resp = postJSON(t, srv.URL+"/jobs/"+job.ID+"/pause")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
