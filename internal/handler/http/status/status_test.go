package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"catchup-feed/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusReader struct {
	sources    []entity.SourceFeed
	sourcesErr error

	runs    []entity.PipelineRunRecord
	runsErr error

	moderation    []entity.ModerationItem
	moderationErr error

	requestedStatus entity.ModerationStatus
}

func (f *fakeStatusReader) ListAllSources(ctx context.Context) ([]entity.SourceFeed, error) {
	return f.sources, f.sourcesErr
}

func (f *fakeStatusReader) ListRecentRuns(ctx context.Context, limit int) ([]entity.PipelineRunRecord, error) {
	return f.runs, f.runsErr
}

func (f *fakeStatusReader) ListModerationByStatus(ctx context.Context, status entity.ModerationStatus) ([]entity.ModerationItem, error) {
	f.requestedStatus = status
	return f.moderation, f.moderationErr
}

func TestHandler_Sources_OK(t *testing.T) {
	reader := &fakeStatusReader{sources: []entity.SourceFeed{{ID: "src-1", DisplayName: "Niseko Town Hall"}}}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/status/sources", nil)
	rec := httptest.NewRecorder()
	h.Sources(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Niseko Town Hall")
}

func TestHandler_Sources_StoreError(t *testing.T) {
	reader := &fakeStatusReader{sourcesErr: errors.New("store unreachable")}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/status/sources", nil)
	rec := httptest.NewRecorder()
	h.Sources(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandler_Runs_OK(t *testing.T) {
	reader := &fakeStatusReader{runs: []entity.PipelineRunRecord{{ID: "run-1", Status: entity.RunStatusCompleted}}}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/status/runs", nil)
	rec := httptest.NewRecorder()
	h.Runs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
}

func TestHandler_Moderation_FiltersToPending(t *testing.T) {
	reader := &fakeStatusReader{moderation: []entity.ModerationItem{{ID: "mod-1", Status: entity.ModerationPending}}}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/status/moderation", nil)
	rec := httptest.NewRecorder()
	h.Moderation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.ModerationPending, reader.requestedStatus)
	assert.Contains(t, rec.Body.String(), "mod-1")
}

func TestHandler_Moderation_StoreError(t *testing.T) {
	reader := &fakeStatusReader{moderationErr: errors.New("store unreachable")}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/status/moderation", nil)
	rec := httptest.NewRecorder()
	h.Moderation(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
