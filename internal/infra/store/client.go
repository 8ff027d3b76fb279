package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/resilience/circuitbreaker"
	"catchup-feed/internal/resilience/retry"
)

// Client talks PostgREST-style HTTP to the external relational store:
// apikey/Authorization headers, `column=eq.value` filters, `order=col.asc`
// sorting, and `Prefer: return=representation` on writes.
type Client struct {
	baseURL        string
	apiKey         string
	bearer         string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// New builds a store client against a PostgREST-compatible base URL.
func New(baseURL, apiKey, bearer string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		bearer:  bearer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig("store-rest")),
		retryConfig:    retry.DBConfig(),
	}
}

var _ Store = (*Client)(nil)

// Ping performs a cheap bounded read against the store to verify reachability,
// for use by the operator health surface.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	_, err := c.do(ctx, http.MethodGet, "source_feeds", q, nil, "")
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// CircuitBreakerState reports the current state of the store's outbound
// circuit breaker ("closed", "half-open", or "open").
func (c *Client) CircuitBreakerState() string {
	return c.circuitBreaker.State().String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("store: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	full := c.baseURL + "/" + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var respBody []byte
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, method, full, reqBody, prefer)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("store: circuit breaker open: %w", err)
			}
			return err
		}
		respBody = result.([]byte)
		return nil
	})
	return respBody, retryErr
}

func (c *Client) doOnce(ctx context.Context, method, full string, body io.Reader, prefer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// --- source_feeds ---

type sourceFeedRow struct {
	ID                string         `json:"id"`
	DisplayName       string         `json:"display_name"`
	Kind              string         `json:"kind"`
	URL               string         `json:"url"`
	Active            bool           `json:"is_active"`
	ReliabilityTier   string         `json:"reliability_tier"`
	DefaultTopics     []string       `json:"default_topics"`
	DefaultGeoTags    []string       `json:"default_geo_tags"`
	PollCadence       string         `json:"poll_cadence"`
	Config            map[string]any `json:"config"`
	LastFetchedAt     *time.Time     `json:"last_fetched_at"`
	LastError         string         `json:"last_error"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	ReliabilityScore  float64        `json:"reliability_score"`
}

func (c *Client) ListActive(ctx context.Context, kind entity.SourceKind) ([]entity.SourceFeed, error) {
	q := url.Values{
		"is_active": {"eq.true"},
		"kind":      {"eq." + string(kind)},
		"order":     {"last_fetched_at.asc.nullsfirst"},
	}
	raw, err := c.do(ctx, http.MethodGet, "source_feeds", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: list active sources: %w", err)
	}

	var rows []sourceFeedRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode source_feeds: %w", err)
	}

	out := make([]entity.SourceFeed, 0, len(rows))
	for _, r := range rows {
		out = append(out, sourceFeedFromRow(r))
	}
	return out, nil
}

func sourceFeedFromRow(r sourceFeedRow) entity.SourceFeed {
	topics := make([]entity.Topic, 0, len(r.DefaultTopics))
	for _, t := range r.DefaultTopics {
		topics = append(topics, entity.Topic(t))
	}
	geos := make([]entity.GeoTag, 0, len(r.DefaultGeoTags))
	for _, g := range r.DefaultGeoTags {
		geos = append(geos, entity.GeoTag(g))
	}
	return entity.SourceFeed{
		ID:                r.ID,
		DisplayName:       r.DisplayName,
		Kind:              entity.SourceKind(r.Kind),
		URL:               r.URL,
		Active:            r.Active,
		ReliabilityTier:   entity.ReliabilityTier(r.ReliabilityTier),
		DefaultTopics:     topics,
		DefaultGeoTags:    geos,
		PollCadence:       entity.CycleKind(r.PollCadence),
		Config:            r.Config,
		LastFetchedAt:     r.LastFetchedAt,
		LastError:         r.LastError,
		ConsecutiveErrors: r.ConsecutiveErrors,
		ReliabilityScore:  r.ReliabilityScore,
	}
}

func (c *Client) MarkFetched(ctx context.Context, sourceID string) error {
	q := url.Values{"id": {"eq." + sourceID}}
	patch := map[string]any{
		"last_fetched_at":    time.Now().UTC(),
		"last_error":         nil,
		"consecutive_errors": 0,
	}
	_, err := c.do(ctx, http.MethodPatch, "source_feeds", q, patch, "")
	if err != nil {
		return fmt.Errorf("store: mark fetched: %w", err)
	}
	return nil
}

func (c *Client) MarkError(ctx context.Context, sourceID, message string) error {
	q := url.Values{"id": {"eq." + sourceID}}
	patch := map[string]any{"last_error": message}
	_, err := c.do(ctx, http.MethodPatch, "source_feeds", q, patch, "")
	if err != nil {
		return fmt.Errorf("store: mark error: %w", err)
	}
	return nil
}

func (c *Client) UpdateReliabilityScore(ctx context.Context, sourceID string, score float64) error {
	q := url.Values{"id": {"eq." + sourceID}}
	patch := map[string]any{"reliability_score": score}
	_, err := c.do(ctx, http.MethodPatch, "source_feeds", q, patch, "")
	if err != nil {
		var httpErr *retry.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %v", ErrMissingColumn, err)
		}
		return fmt.Errorf("store: update reliability score: %w", err)
	}
	return nil
}

// --- crawl_history ---

type crawlHistoryRow struct {
	ID                 string         `json:"id"`
	SourceFeedID       string         `json:"source_feed_id"`
	SourceURL          string         `json:"source_url"`
	ContentFingerprint string         `json:"content_fingerprint"`
	PipelineRunID      string         `json:"pipeline_run_id"`
	Status             string         `json:"status"`
	WasRelevant        bool           `json:"was_relevant"`
	WasDuplicate       bool           `json:"was_duplicate"`
	RelevanceScore     *float64       `json:"relevance_score"`
	ClassificationData map[string]any `json:"classification_data"`
	FieldNoteID        string         `json:"field_note_id"`
	ModerationItemID   string         `json:"moderation_item_id"`
	RawData            map[string]any `json:"raw_data"`
	ErrorMessage       string         `json:"error_message"`
	FetchedAt          time.Time      `json:"fetched_at"`
	Topics             []string       `json:"topics"`
}

func (c *Client) InsertCrawlRecord(ctx context.Context, rec entity.CrawlHistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := crawlHistoryRow{
		ID:                 rec.ID,
		SourceFeedID:       rec.SourceFeedID,
		SourceURL:          rec.SourceURL,
		ContentFingerprint: rec.ContentFingerprint,
		PipelineRunID:      rec.PipelineRunID,
		Status:             string(rec.Status),
		WasRelevant:        rec.WasRelevant,
		WasDuplicate:       rec.WasDuplicate,
		RelevanceScore:     rec.RelevanceScore,
		ClassificationData: rec.ClassificationData,
		FieldNoteID:        rec.FieldNoteID,
		ModerationItemID:   rec.ModerationItemID,
		RawData:            rec.RawData,
		ErrorMessage:       rec.ErrorMessage,
		FetchedAt:          rec.FetchedAt,
	}
	row.Topics = topicsToStrings(rec.ClassificationData["topics"])
	_, err := c.do(ctx, http.MethodPost, "crawl_history", nil, row, "return=minimal")
	if err != nil {
		return fmt.Errorf("store: insert crawl history: %w", err)
	}
	return nil
}

func (c *Client) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.CrawlHistoryRecord, error) {
	q := url.Values{
		"content_fingerprint": {"eq." + fingerprint},
		"select":              {"id,source_url,field_note_id,status"},
		"limit":               {"1"},
	}
	raw, err := c.do(ctx, http.MethodGet, "crawl_history", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: lookup fingerprint: %w", err)
	}

	var rows []crawlHistoryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode crawl_history: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := crawlHistoryFromRow(rows[0])
	return &rec, nil
}

func (c *Client) RecentRelevant(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error) {
	q := url.Values{
		"was_relevant":  {"eq.true"},
		"was_duplicate": {"eq.false"},
		"order":         {"fetched_at.desc"},
		"limit":         {strconv.Itoa(limit)},
	}
	return c.queryCrawlHistory(ctx, q)
}

func (c *Client) RecentRelevantWindow(ctx context.Context, limit int) ([]entity.CrawlHistoryRecord, error) {
	q := url.Values{
		"was_relevant": {"eq.true"},
		"order":        {"fetched_at.desc"},
		"limit":        {strconv.Itoa(limit)},
	}
	return c.queryCrawlHistory(ctx, q)
}

func (c *Client) queryCrawlHistory(ctx context.Context, q url.Values) ([]entity.CrawlHistoryRecord, error) {
	raw, err := c.do(ctx, http.MethodGet, "crawl_history", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: query crawl history: %w", err)
	}
	var rows []crawlHistoryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode crawl_history: %w", err)
	}
	out := make([]entity.CrawlHistoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, crawlHistoryFromRow(r))
	}
	return out, nil
}

func crawlHistoryFromRow(r crawlHistoryRow) entity.CrawlHistoryRecord {
	data := r.ClassificationData
	if data == nil {
		data = map[string]any{}
	}
	// The `topics` top-level column is the wire-stable representation
	// (plain []string survives the JSON round trip); reconstruct the
	// []entity.Topic shape the classifier/reliability packages expect
	// rather than trusting whatever classification_data happened to decode to.
	if len(r.Topics) > 0 {
		topics := make([]entity.Topic, len(r.Topics))
		for i, t := range r.Topics {
			topics[i] = entity.Topic(t)
		}
		data["topics"] = topics
	}
	return entity.CrawlHistoryRecord{
		ID:                 r.ID,
		SourceFeedID:       r.SourceFeedID,
		SourceURL:          r.SourceURL,
		ContentFingerprint: r.ContentFingerprint,
		PipelineRunID:      r.PipelineRunID,
		Status:             entity.CrawlStatus(r.Status),
		WasRelevant:        r.WasRelevant,
		WasDuplicate:       r.WasDuplicate,
		RelevanceScore:     r.RelevanceScore,
		ClassificationData: data,
		FieldNoteID:        r.FieldNoteID,
		ModerationItemID:   r.ModerationItemID,
		RawData:            r.RawData,
		ErrorMessage:       r.ErrorMessage,
		FetchedAt:          r.FetchedAt,
	}
}

// topicsToStrings extracts a []string for the wire-stable `topics` column
// from whatever shape the in-process ClassificationData["topics"] value
// actually carries ([]entity.Topic from the pipeline stages themselves, or
// []string/[]any if constructed by a caller outside the domain layer).
func topicsToStrings(v any) []string {
	switch t := v.(type) {
	case []entity.Topic:
		out := make([]string, len(t))
		for i, topic := range t {
			out[i] = string(topic)
		}
		return out
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// --- pipeline_runs ---

func (c *Client) InsertRunning(ctx context.Context, run entity.PipelineRunRecord) error {
	row := map[string]any{
		"id":         run.ID,
		"kind":       run.Kind,
		"cycle_kind": run.CycleKind,
		"status":     entity.RunStatusRunning,
		"started_at": run.StartedAt,
	}
	_, err := c.do(ctx, http.MethodPost, "pipeline_runs", nil, row, "return=minimal")
	if err != nil {
		return fmt.Errorf("store: insert pipeline run: %w", err)
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, runID string, stats map[string]int64, sources []string) error {
	q := url.Values{"id": {"eq." + runID}}
	now := time.Now().UTC()
	patch := map[string]any{
		"status":       entity.RunStatusCompleted,
		"stats":        stats,
		"sources":      sources,
		"completed_at": now,
	}
	_, err := c.do(ctx, http.MethodPatch, "pipeline_runs", q, patch, "")
	if err != nil {
		return fmt.Errorf("store: complete pipeline run: %w", err)
	}
	return nil
}

func (c *Client) Fail(ctx context.Context, runID string, errMsg string) error {
	q := url.Values{"id": {"eq." + runID}}
	now := time.Now().UTC()
	patch := map[string]any{
		"status":       entity.RunStatusFailed,
		"error":        errMsg,
		"completed_at": now,
	}
	_, err := c.do(ctx, http.MethodPatch, "pipeline_runs", q, patch, "")
	if err != nil {
		return fmt.Errorf("store: fail pipeline run: %w", err)
	}
	return nil
}

// --- moderation_queue ---

type moderationRow struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

func (c *Client) InsertModerationItem(ctx context.Context, item entity.ModerationItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	row := moderationRow{
		ID:       item.ID,
		Type:     string(item.Type),
		Content:  item.Content,
		Status:   string(entity.ModerationPending),
		Metadata: item.Metadata,
	}
	_, err := c.do(ctx, http.MethodPost, "moderation_queue", nil, row, "return=minimal")
	if err != nil {
		return "", fmt.Errorf("store: insert moderation item: %w", err)
	}
	return item.ID, nil
}

func (c *Client) ListApprovedTips(ctx context.Context) ([]entity.ModerationItem, error) {
	q := url.Values{
		"type":   {"eq.tip"},
		"status": {"eq.approved"},
		"order":  {"created_at.asc"},
		"limit":  {"20"},
	}
	raw, err := c.do(ctx, http.MethodGet, "moderation_queue", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: list approved tips: %w", err)
	}

	var rows []moderationRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode moderation_queue: %w", err)
	}

	out := make([]entity.ModerationItem, 0, len(rows))
	for _, r := range rows {
		if ingested, _ := r.Metadata["ingested"].(bool); ingested {
			continue
		}
		out = append(out, entity.ModerationItem{
			ID:       r.ID,
			Type:     entity.ModerationItemType(r.Type),
			Content:  r.Content,
			Status:   entity.ModerationStatus(r.Status),
			Metadata: r.Metadata,
		})
	}
	return out, nil
}

func (c *Client) MarkIngested(ctx context.Context, itemID string) error {
	q := url.Values{"id": {"eq." + itemID}}
	patch := map[string]any{"metadata": map[string]any{"ingested": true}}
	_, err := c.do(ctx, http.MethodPatch, "moderation_queue", q, patch, "")
	if err != nil {
		return fmt.Errorf("store: mark tip ingested: %w", err)
	}
	return nil
}

// --- field_notes ---

type fieldNoteRow struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	AuthorBotID  string   `json:"author_bot_id"`
	Who          string   `json:"who"`
	What         string   `json:"what"`
	When         string   `json:"when_field"`
	Where        string   `json:"where_field"`
	Why          string   `json:"why"`
	How          string   `json:"how"`
	SafetyFlags  []string `json:"safety_flags"`
	Quotes       []any    `json:"quotes"`
	EvidenceRefs []any    `json:"evidence_refs"`
	RawText      string   `json:"raw_text"`
}

func (c *Client) InsertFieldNote(ctx context.Context, note entity.FieldNote) (string, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}

	quotes := make([]any, 0, len(note.Quotes))
	for _, q := range note.Quotes {
		quotes = append(quotes, map[string]any{
			"speaker": q.Speaker, "text": q.Text, "context": q.Context,
		})
	}
	evidence := make([]any, 0, len(note.EvidenceRefs))
	for _, e := range note.EvidenceRefs {
		evidence = append(evidence, map[string]any{
			"kind": e.Kind, "url": e.URL, "description": e.Description,
		})
	}

	row := fieldNoteRow{
		ID:           note.ID,
		Status:       string(entity.FieldNoteStatusRaw),
		AuthorBotID:  note.AuthorBotID,
		Who:          note.Who,
		What:         note.What,
		When:         note.When,
		Where:        note.Where,
		Why:          note.Why,
		How:          note.How,
		SafetyFlags:  note.SafetyFlags,
		Quotes:       quotes,
		EvidenceRefs: evidence,
		RawText:      note.RawText,
	}
	_, err := c.do(ctx, http.MethodPost, "field_notes", nil, row, "return=minimal")
	if err != nil {
		return "", fmt.Errorf("store: insert field note: %w", err)
	}
	return note.ID, nil
}

// --- read-only status surface (cmd/api) ---
//
// These three methods back the admin status surface only; the pipeline
// itself never calls them, so they sit outside the Store interface.

// ListAllSources returns every configured source regardless of active
// state, most-recently-fetched first, for the operator status page.
func (c *Client) ListAllSources(ctx context.Context) ([]entity.SourceFeed, error) {
	q := url.Values{"order": {"last_fetched_at.desc.nullslast"}}
	raw, err := c.do(ctx, http.MethodGet, "source_feeds", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: list all sources: %w", err)
	}

	var rows []sourceFeedRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode source_feeds: %w", err)
	}
	out := make([]entity.SourceFeed, 0, len(rows))
	for _, r := range rows {
		out = append(out, sourceFeedFromRow(r))
	}
	return out, nil
}

type pipelineRunRow struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	CycleKind   string           `json:"cycle_kind"`
	Status      string           `json:"status"`
	Stats       map[string]int64 `json:"stats"`
	Sources     []string         `json:"sources"`
	Error       string           `json:"error"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at"`
}

// ListRecentRuns returns up to limit pipeline run rows, most recently
// started first, for the operator status page.
func (c *Client) ListRecentRuns(ctx context.Context, limit int) ([]entity.PipelineRunRecord, error) {
	q := url.Values{
		"order": {"started_at.desc"},
		"limit": {strconv.Itoa(limit)},
	}
	raw, err := c.do(ctx, http.MethodGet, "pipeline_runs", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: list recent runs: %w", err)
	}

	var rows []pipelineRunRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode pipeline_runs: %w", err)
	}
	out := make([]entity.PipelineRunRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, entity.PipelineRunRecord{
			ID: r.ID, Kind: entity.PipelineRunKind(r.Kind), CycleKind: entity.CycleKind(r.CycleKind),
			Status: entity.PipelineRunStatus(r.Status), Stats: r.Stats, Sources: r.Sources,
			ErrorMsg: r.Error, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

// ListModerationByStatus returns moderation_queue rows in the given status,
// most recently created first, for the operator review queue.
func (c *Client) ListModerationByStatus(ctx context.Context, status entity.ModerationStatus) ([]entity.ModerationItem, error) {
	q := url.Values{
		"status": {"eq." + string(status)},
		"order":  {"created_at.desc"},
	}
	raw, err := c.do(ctx, http.MethodGet, "moderation_queue", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("store: list moderation by status: %w", err)
	}

	var rows []moderationRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("store: decode moderation_queue: %w", err)
	}
	out := make([]entity.ModerationItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, entity.ModerationItem{
			ID: r.ID, Type: entity.ModerationItemType(r.Type), Content: r.Content,
			Status: entity.ModerationStatus(r.Status), Metadata: r.Metadata,
		})
	}
	return out, nil
}
