package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"catchup-feed/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, path string, respond func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/"+path, r.URL.Path)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-api-key", "")
}

func TestClient_ListAllSources(t *testing.T) {
	rows := []sourceFeedRow{
		{ID: "src-1", DisplayName: "Niseko Town Hall", Kind: "api", ReliabilityTier: "official"},
	}
	c := newTestClient(t, "source_feeds", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "last_fetched_at.desc.nullslast", r.URL.Query().Get("order"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})

	sources, err := c.ListAllSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "src-1", sources[0].ID)
	assert.Equal(t, entity.ReliabilityTier("official"), sources[0].ReliabilityTier)
}

func TestClient_ListRecentRuns(t *testing.T) {
	rows := []pipelineRunRow{
		{ID: "run-1", Kind: "scheduled", CycleKind: "main", Status: "completed", Stats: map[string]int64{"collected": 10}},
	}
	c := newTestClient(t, "pipeline_runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "started_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})

	runs, err := c.ListRecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, entity.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, int64(10), runs[0].Stats["collected"])
}

func TestClient_ListModerationByStatus(t *testing.T) {
	rows := []moderationRow{
		{ID: "mod-1", Type: "tip", Content: "a tip", Status: "pending"},
	}
	c := newTestClient(t, "moderation_queue", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.pending", r.URL.Query().Get("status"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})

	items, err := c.ListModerationByStatus(context.Background(), entity.ModerationPending)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entity.ModerationItemTip, items[0].Type)
}

func TestClient_ListAllSources_StoreError(t *testing.T) {
	c := newTestClient(t, "source_feeds", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	_, err := c.ListAllSources(context.Background())
	assert.Error(t, err)
}
