package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsum/analysis"
	"docsum/cache"
	"docsum/model"
	"docsum/segment"
	"docsum/summary"
	"docsum/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const layout = `[
	{"text": "Quarterly revenue grew by twelve percent.", "page_number": 1, "type": "Text"},
	{"text": "Hiring will resume in the spring.", "page_number": 2, "type": "Text"}
]`

type stubAnalyzer struct {
	res json.RawMessage
	err error
}

func (a stubAnalyzer) Analyze(context.Context, []byte, string) (json.RawMessage, error) {
	return a.res, a.err
}

type stubGen struct{}

func (stubGen) Generate(_ context.Context, msgs []model.Message) (string, error) {
	return "summary of: " + msgs[len(msgs)-1].Content[:20], nil
}

type stubAsker struct {
	err error
}

func (s stubAsker) Query(_ context.Context, hash, query string) (*types.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.ChatResponse{Response: "answer to " + query, Sources: []types.Source{}}, nil
}

type testEnv struct {
	app   *fiber.App
	cache *cache.Cache
}

func newTestEnv(t *testing.T, analyzer analysis.Analyzer, asker Asker, withGen bool) *testEnv {
	t.Helper()
	c, err := cache.New(t.TempDir(), discard)
	require.NoError(t, err)

	ingest := analysis.NewService(c, analyzer,
		analysis.WithLogger(discard),
		analysis.WithInspector(func([]byte) (int, error) { return 2, nil }),
		analysis.WithShapeCheck(segment.CheckShape))
	docs := segment.NewSource(ingest)

	var job *summary.Job
	if withGen {
		job = summary.NewJob(stubGen{}, c, summary.Options{}, summary.WithJobLogger(discard),
			summary.WithSleep(func(context.Context, time.Duration) error { return nil }))
	}
	sums := summary.NewService(c, docs, job, discard)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	documents := NewDocumentHandler(ingest, docs)
	summaries := NewSummaryHandler(sums, docs)
	chat := NewRequestHandler(asker, docs)

	apiv1 := app.Group("/api/v1")
	app.Get("/check/healthy", NewCheckHandler(withGen, asker != nil).HandleHealthy)
	apiv1.Post("/analyze", documents.HandleAnalyze)
	apiv1.Get("/analysis/:hash", documents.HandleGetAnalysis)
	apiv1.Get("/documents/:hash/segments", documents.HandleSegments)
	apiv1.Post("/summaries/:hash", summaries.HandleSummarize)
	apiv1.Get("/summaries/:hash/status", summaries.HandleStatus)
	apiv1.Get("/summaries/:hash/export", summaries.HandleExport)
	apiv1.Post("/chat/:hash", chat.HandleChat)

	return &testEnv{app: app, cache: c}
}

func upload(t *testing.T, app *fiber.App, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, nil, false)
	data := []byte("%PDF-1.7 report")

	resp := upload(t, env.app, "report.pdf", data)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode[types.AnalyzeResponse](t, resp)
	assert.Equal(t, cache.Hash(data), out.Hash)
	assert.False(t, out.Cached)
	assert.Equal(t, 2, out.Pages)

	resp = upload(t, env.app, "report.pdf", data)
	out = decode[types.AnalyzeResponse](t, resp)
	assert.True(t, out.Cached)

	resp = get(t, env.app, "/api/v1/analysis/"+out.Hash)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = get(t, env.app, "/api/v1/documents/"+out.Hash+"/segments")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	segs := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, segs.Count)
}

func TestAnalyze_Errors(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, nil, false)
	resp := upload(t, env.app, "notes.txt", []byte("hello"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	env = newTestEnv(t, stubAnalyzer{err: &analysis.ServiceError{Status: 422, Detail: "encrypted pdf"}}, nil, false)
	resp = upload(t, env.app, "locked.pdf", []byte("%PDF locked"))
	assert.Equal(t, 422, resp.StatusCode)
	apiErr := decode[Error](t, resp)
	assert.Equal(t, "encrypted pdf", apiErr.Message)

	env = newTestEnv(t, stubAnalyzer{err: types.ErrUpstreamTimeout}, nil, false)
	resp = upload(t, env.app, "slow.pdf", []byte("%PDF slow"))
	assert.Equal(t, fiber.StatusGatewayTimeout, resp.StatusCode)

	env = newTestEnv(t, stubAnalyzer{res: json.RawMessage(`{"unexpected": true}`)}, nil, false)
	resp = upload(t, env.app, "odd.pdf", []byte("%PDF odd"))
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestLookups_NotFoundAndBadHash(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{}, stubAsker{}, true)
	missing := cache.Hash([]byte("never uploaded"))

	assert.Equal(t, fiber.StatusNotFound, get(t, env.app, "/api/v1/analysis/"+missing).StatusCode)
	assert.Equal(t, fiber.StatusNotFound, get(t, env.app, "/api/v1/documents/"+missing+"/segments").StatusCode)
	assert.Equal(t, fiber.StatusNotFound, postJSON(t, env.app, "/api/v1/chat/"+missing, `{"query":"hi"}`).StatusCode)
	assert.Equal(t, fiber.StatusNotFound, postJSON(t, env.app, "/api/v1/summaries/"+missing, `{}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, get(t, env.app, "/api/v1/analysis/not-a-hash").StatusCode)
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, stubAsker{}, false)
	hash := decode[types.AnalyzeResponse](t, upload(t, env.app, "r.pdf", []byte("%PDF chat"))).Hash

	resp := postJSON(t, env.app, "/api/v1/chat/"+hash, `{"query":"How did revenue change?"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode[types.ChatResponse](t, resp)
	assert.Equal(t, "answer to How did revenue change?", out.Response)

	resp = postJSON(t, env.app, "/api/v1/chat/"+hash, `{"query":""}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = postJSON(t, env.app, "/api/v1/chat/"+hash, `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChat_NotConfigured(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, nil, false)
	hash := decode[types.AnalyzeResponse](t, upload(t, env.app, "r.pdf", []byte("%PDF nc"))).Hash

	resp := postJSON(t, env.app, "/api/v1/chat/"+hash, `{"query":"anything"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp = postJSON(t, env.app, "/api/v1/summaries/"+hash, `{}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestChat_RateLimited(t *testing.T) {
	limited := &model.RateLimitError{RetryAfter: 20 * time.Second, Err: errors.New("quota")}
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, stubAsker{err: limited}, false)
	hash := decode[types.AnalyzeResponse](t, upload(t, env.app, "r.pdf", []byte("%PDF rl"))).Hash

	resp := postJSON(t, env.app, "/api/v1/chat/"+hash, `{"query":"anything"}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "20", resp.Header.Get("Retry-After"))
}

func TestSummaries(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{res: json.RawMessage(layout)}, nil, true)
	hash := decode[types.AnalyzeResponse](t, upload(t, env.app, "r.pdf", []byte("%PDF sum"))).Hash

	status := decode[types.JobState](t, get(t, env.app, "/api/v1/summaries/"+hash+"/status"))
	assert.Equal(t, types.StatusNotStarted, status.Status)

	resp := postJSON(t, env.app, "/api/v1/summaries/"+hash, `{"return_partial": true}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode[types.SummaryResponse](t, resp)
	assert.Equal(t, types.StatusComplete, out.Status)
	assert.Equal(t, 2, out.Count)
	assert.False(t, out.Partial)

	status = decode[types.JobState](t, get(t, env.app, "/api/v1/summaries/"+hash+"/status"))
	assert.Equal(t, types.StatusComplete, status.Status)
	assert.Equal(t, 100.0, status.Percent)

	resp = get(t, env.app, "/api/v1/summaries/"+hash+"/export")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "_summaries.xlsx")
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")))
}

func TestHealthy(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{}, stubAsker{}, true)
	out := decode[map[string]any](t, get(t, env.app, "/check/healthy"))
	assert.Equal(t, "ok", out["result"])
	assert.Equal(t, true, out["generation"])
	assert.Equal(t, true, out["retrieval"])
}
