// Package tfapi updates Testing Farm requests with the state and results of a
// pipeline run.
package tfapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	rh "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRequestNotFound is returned when the API does not know the request.
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestConflict is returned when the update conflicts with the
	// current state of the request, e.g. it was canceled.
	ErrRequestConflict = errors.New("request update conflicts with current request state")
)

// State is the pipeline state reported to the request.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// OverallResultUnknown replaces overall results the API does not accept.
const OverallResultUnknown = "unknown"

var allowedOverallResults = []string{"passed", "failed", "skipped", OverallResultUnknown, "error"}

// OverallResult returns result when the API accepts it and
// OverallResultUnknown otherwise.
func OverallResult(result string) string {
	for _, allowed := range allowedOverallResults {
		if result == allowed {
			return result
		}
	}
	return OverallResultUnknown
}

// Result is the result part of a request update.
type Result struct {
	Overall  string `json:"overall,omitempty"`
	XUnit    string `json:"xunit,omitempty"`
	XUnitURL string `json:"xunit_url,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// Run is the run part of a request update.
type Run struct {
	Artifacts string `json:"artifacts,omitempty"`
}

// Update is the payload of a request update. Empty parts are left out.
type Update struct {
	APIKey string  `json:"api_key,omitempty"`
	State  State   `json:"state,omitempty"`
	Result *Result `json:"result,omitempty"`
	Run    *Run    `json:"run,omitempty"`
}

// Client talks to the Testing Farm API.
type Client struct {
	baseURL *url.URL
	http    *rh.Client
}

// NewClient returns a client for the API rooted at apiURL. Requests are
// retried with the retryablehttp defaults.
func NewClient(apiURL string, logger *logrus.Logger) (*Client, error) {
	if apiURL == "" {
		return nil, errors.New("missing Testing Farm API URL")
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, errors.New("failed to parse Testing Farm API URL: " + err.Error())
	}

	retries := newRetryLogger(logger, base.Host)
	client := rh.NewClient()
	client.Logger = retries
	client.RequestLogHook = retries.logRetry

	return &Client{baseURL: base, http: client}, nil
}

// UpdateRequest sends update to the request requestID.
func (c *Client) UpdateRequest(ctx context.Context, requestID string, update Update) error {
	if requestID == "" {
		return errors.New("missing request id")
	}

	endpoint := c.baseURL.JoinPath("v0.1", "requests", requestID)

	payload, err := json.Marshal(update)
	if err != nil {
		return errors.New("failed to encode request update: " + err.Error())
	}

	req, err := rh.NewRequestWithContext(ctx, http.MethodPut, endpoint.String(), payload)
	if err != nil {
		return errors.New("failed to create request update: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	logger := logrus.WithFields(logrus.Fields{
		"Request": requestID,
		"State":   update.State,
	})
	logger.Debug("updating Testing Farm request")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithError(err).Error("Failed to update Testing Farm request")
		return errors.New("failed to update request: " + err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrRequestConflict, requestID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.WithError(err).Debug("failed to read Testing Farm API response")
		}
		logger.WithField("StatusCode", resp.StatusCode).WithField("Response", string(body)).Error("Unexpected response from Testing Farm API")
		return fmt.Errorf("unexpected response status code %d updating request %s", resp.StatusCode, requestID)
	}

	logger.Info("updated Testing Farm request")
	return nil
}
