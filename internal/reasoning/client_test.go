package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Stream(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, streamPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"type":"summary","text":"ok"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", 0)
	body, err := c.Stream(context.Background(), Request{
		Instruction: "tighten",
		FilePath:    "main.tex",
		Content:     "text",
		ForceEdit:   true,
		ModelTier:   "fast",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"summary","text":"ok"}`, string(data))
	assert.Equal(t, "tighten", got.Instruction)
	assert.True(t, got.ForceEdit)
	assert.Equal(t, "fast", got.ModelTier)
}

func TestHTTPClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", 0).Stream(context.Background(), Request{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "overloaded", se.Body)
	assert.True(t, Retryable(err))
}

func TestHTTPClient_Reflect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, memoryPath, r.URL.Path)
		var req MemoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]string{"memory": req.Memory + " | " + req.Summary})
	}))
	defer srv.Close()

	mem, err := NewHTTPClient(srv.URL, "", 0).Reflect(context.Background(), MemoryRequest{
		Memory:  "proof of lemma 2",
		Summary: "tightened bound",
	})
	require.NoError(t, err)
	assert.Equal(t, "proof of lemma 2 | tightened bound", mem)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(errors.New("connection refused")))
}

func TestReplayClient(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/runs/one.ndjson", []byte(`{"type":"summary","text":"s"}`+"\n"), 0o644))

	c := NewReplayClient(fs, "/runs/one.ndjson")
	body, err := c.Stream(context.Background(), Request{})
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Contains(t, string(data), "summary")

	mem, err := c.Reflect(context.Background(), MemoryRequest{Memory: "kept"})
	require.NoError(t, err)
	assert.Equal(t, "kept", mem)

	_, err = NewReplayClient(fs, "/missing").Stream(context.Background(), Request{})
	assert.Error(t, err)
}
