package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const def = 30 * time.Second

func TestParseRetryDelay(t *testing.T) {
	cases := []struct {
		text string
		want time.Duration
	}{
		{"retry after 20s", 20 * time.Second},
		{"wait 2 minutes", 2 * time.Minute},
		{"Please retry in 5 seconds.", 5 * time.Second},
		{"Please retry in 13.2s", 14 * time.Second},
		{"quota resets in 1 min", time.Minute},
		{"rate limit reached", def},
		{"slow down for 0 seconds", def},
		{"", def},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, tc.want, ParseRetryDelay(tc.text, def))
		})
	}
}

func TestClassifyRateLimit(t *testing.T) {
	cases := []struct {
		err       error
		wantOK    bool
		wantDelay time.Duration
	}{
		{nil, false, 0},
		{errors.New("connection reset by peer"), false, 0},
		{errors.New("Rate limit exceeded, retry after 20s"), true, 20 * time.Second},
		{errors.New("You exceeded your current quota"), true, def},
		{errors.New("daily limit exceeded; wait 2 minutes"), true, 2 * time.Minute},
		{&RateLimitError{RetryAfter: 7 * time.Second, Err: errors.New("429")}, true, 7 * time.Second},
		{fmt.Errorf("wrapped: %w", &RateLimitError{Err: errors.New("try again in 3 seconds")}), true, 3 * time.Second},
		{&RateLimitError{Err: errors.New("Too Many Requests")}, true, def},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			d, ok := ClassifyRateLimit(tc.err, def)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantDelay, d)
		})
	}
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, retryAfterHeader(nil))
	assert.Zero(t, retryAfterHeader(h))

	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, retryAfterHeader(h))

	h.Set("Retry-After", "soon")
	assert.Zero(t, retryAfterHeader(h))
}

func TestGeminiRetryDelay(t *testing.T) {
	details := []map[string]any{
		{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
		{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "13s"},
	}
	assert.Equal(t, 13*time.Second, geminiRetryDelay(details))
	assert.Zero(t, geminiRetryDelay(nil))
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	})
	assert.Equal(t, "be brief", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, "question", req.Prompt)
		_, _ = w.Write([]byte(`{"response":"answer","done":true}`))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3", "", "")
	out, err := o.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestOllama_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("server busy"))
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m", "", "").Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	d, ok := ClassifyRateLimit(err, def)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[3,4]}`))
	}))
	defer srv.Close()

	o := NewOllama("", "", srv.URL, "nomic-embed-text")
	vecs, err := o.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	var norm float64
	for _, v := range vecs[1] {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestRuneCounter(t *testing.T) {
	assert.Equal(t, 0, RuneCounter{}.Count(""))
	assert.Equal(t, 1, RuneCounter{}.Count("abcd"))
	assert.Equal(t, 2, RuneCounter{}.Count("abcde"))
}
