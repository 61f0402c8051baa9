package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorkParsesResultAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("X-Long-Polling", "/lp/0")
		w.Header().Set("X-Roll-Ntime", "Y")
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{
				"midstate": "aa",
				"data":     "bb",
				"hash1":    "cc",
				"target":   "dd",
			},
			"id": 1,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "alice", "secret", time.Second)
	result, err := c.GetWork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bb", result.Data)
	assert.Equal(t, "/lp/0", result.LPPath)
	assert.True(t, result.RollTime)
	assert.Equal(t, "/lp/0", c.LongPollPath())
}

func TestGetWorkRejectsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]string{}, "id": 1})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "", time.Second)
	_, err := c.GetWork(context.Background())
	assert.Error(t, err)
}

func TestSubmitWorkParsesAcceptedBoolean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": true, "id": 1})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "", time.Second)
	accepted, err := c.SubmitWork(context.Background(), "aabb")
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestCallRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "", time.Second)
	_, err := c.GetWork(context.Background())
	assert.Error(t, err)
}
