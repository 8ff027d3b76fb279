// Package status exposes the read-only operator status surface (spec.md
// §6 "the downstream editorial UI is an external collaborator"; this
// package is the thin admin window into the pipeline's own state, not that
// UI). Every handler is a plain GET against the external store — no writes.
package status

import (
	"context"
	"net/http"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/handler/http/respond"
)

// StatusReader is the subset of the store this handler reads from.
type StatusReader interface {
	ListAllSources(ctx context.Context) ([]entity.SourceFeed, error)
	ListRecentRuns(ctx context.Context, limit int) ([]entity.PipelineRunRecord, error)
	ListModerationByStatus(ctx context.Context, status entity.ModerationStatus) ([]entity.ModerationItem, error)
}

// Handler serves the read-only status endpoints.
type Handler struct {
	store StatusReader
}

// New builds a status Handler backed by store.
func New(store StatusReader) *Handler {
	return &Handler{store: store}
}

const defaultRunLimit = 20

// Sources handles GET /status/sources: every configured source, regardless
// of active state.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListAllSources(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusBadGateway, err)
		return
	}
	respond.JSON(w, http.StatusOK, sources)
}

// Runs handles GET /status/runs: the most recent pipeline runs.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRecentRuns(r.Context(), defaultRunLimit)
	if err != nil {
		respond.SafeError(w, http.StatusBadGateway, err)
		return
	}
	respond.JSON(w, http.StatusOK, runs)
}

// Moderation handles GET /status/moderation: pending moderation-queue items
// awaiting editorial review (spec.md §4.7 flag/reject routing).
func (h *Handler) Moderation(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListModerationByStatus(r.Context(), entity.ModerationPending)
	if err != nil {
		respond.SafeError(w, http.StatusBadGateway, err)
		return
	}
	respond.JSON(w, http.StatusOK, items)
}
