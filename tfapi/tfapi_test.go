package tfapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client, err := NewClient(server.URL+"/api", logger)
	require.NoError(t, err)
	client.http.RetryMax = 0
	client.http.RetryWaitMin = time.Millisecond
	client.http.RetryWaitMax = time.Millisecond
	return client
}

func TestUpdateRequest(t *testing.T) {
	var method, path, contentType string
	var payload map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": "1234"}`))
	})

	err := client.UpdateRequest(context.Background(), "1234", Update{
		APIKey: "secret",
		State:  StateComplete,
		Result: &Result{Overall: "passed", XUnit: "<testsuites/>"},
		Run:    &Run{Artifacts: "http://artifacts/1234"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/api/v0.1/requests/1234", path)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]any{
		"api_key": "secret",
		"state":   "complete",
		"result":  map[string]any{"overall": "passed", "xunit": "<testsuites/>"},
		"run":     map[string]any{"artifacts": "http://artifacts/1234"},
	}, payload)
}

func TestUpdateRequestOmitsEmptyParts(t *testing.T) {
	var payload map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UpdateRequest(context.Background(), "1234", Update{State: StateRunning}))
	assert.Equal(t, map[string]any{"state": "running"}, payload)
}

func TestUpdateRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
		err    string
	}{
		{name: "NotFound", status: http.StatusNotFound, target: ErrRequestNotFound},
		{name: "Conflict", status: http.StatusConflict, target: ErrRequestConflict},
		{name: "BadRequest", status: http.StatusBadRequest, err: "unexpected response status code 400"},
		{name: "ServerError", status: http.StatusInternalServerError, err: "failed to update request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			err := client.UpdateRequest(context.Background(), "1234", Update{State: StateError})
			require.Error(t, err)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			} else {
				assert.Contains(t, err.Error(), tc.err)
			}
		})
	}
}

func TestUpdateRequestMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	})

	assert.Error(t, client.UpdateRequest(context.Background(), "", Update{}))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", nil)
	assert.Error(t, err)

	client, err := NewClient("https://api.testing-farm.io", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.testing-farm.io/", client.baseURL.String())
}

func TestOverallResult(t *testing.T) {
	for result, expected := range map[string]string{
		"passed":           "passed",
		"failed":           "failed",
		"error":            "error",
		"skipped":          "skipped",
		"unknown":          "unknown",
		"info":             "unknown",
		"needs_inspection": "unknown",
		"":                 "unknown",
	} {
		assert.Equal(t, expected, OverallResult(result), result)
	}
}

func TestUpdateRequestTruncatedResponse(t *testing.T) {
	hook := test.NewGlobal()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
		logrus.SetLevel(level)
	})

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":`))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})

	err := client.UpdateRequest(context.Background(), "1234", Update{State: StateError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response status code 400")

	var readFailure *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "failed to read Testing Farm API response" {
			readFailure = entry
		}
	}
	require.NotNil(t, readFailure, "the body read error was not logged")
	assert.Equal(t, logrus.DebugLevel, readFailure.Level)
	assert.Equal(t, "1234", readFailure.Data["Request"])
}

func TestRetryLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	retries := newRetryLogger(logger, "api.testing-farm.io")

	retries.Debug("performing request", "method", "PUT", "url", "http://api/v0.1/requests/1234")
	retries.Debug("retrying request", "request", "PUT http://api/v0.1/requests/1234", "remaining", 3)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, logrus.Fields{
		"API":    "api.testing-farm.io",
		"Method": "PUT",
		"URL":    "http://api/v0.1/requests/1234",
	}, entries[0].Data)
	assert.Equal(t, logrus.InfoLevel, entries[1].Level)
	assert.Equal(t, 3, entries[1].Data["RetriesLeft"])
}

func TestRetryLoggerNamesRequest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	retries := newRetryLogger(logger, "api.testing-farm.io")

	req, err := http.NewRequest(http.MethodPut, "http://api/v0.1/requests/1234", nil)
	require.NoError(t, err)

	retries.logRetry(nil, req, 0)
	assert.Empty(t, hook.AllEntries(), "the first attempt is not a retry")

	retries.logRetry(nil, req, 2)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "1234", entry.Data["Request"])
	assert.Equal(t, 2, entry.Data["Attempt"])
	assert.Equal(t, "api.testing-farm.io", entry.Data["API"])
}

func TestUpdateRequestRetriesServerErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, logger)
	require.NoError(t, err)
	client.http.RetryMax = 1
	client.http.RetryWaitMin = time.Millisecond
	client.http.RetryWaitMax = time.Millisecond

	require.NoError(t, client.UpdateRequest(context.Background(), "5678", Update{State: StateRunning}))
	assert.Equal(t, int32(2), calls.Load())

	var retried bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "retrying Testing Farm request update" && entry.Data["Request"] == "5678" {
			retried = true
		}
	}
	assert.True(t, retried, "the retry was not logged with the request id")
}
