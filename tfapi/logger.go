package tfapi

import (
	"net/http"
	"path"
	"strings"

	rh "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// retryLogger routes retryablehttp logging into logrus, tagged with the API
// host the client talks to.
type retryLogger struct {
	entry *logrus.Entry
}

func newRetryLogger(logger *logrus.Logger, api string) *retryLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &retryLogger{entry: logger.WithField("API", api)}
}

// retryablehttp keys renamed to the field names used by the rest of the logs
var fieldNames = map[string]string{
	"method":    "Method",
	"url":       "URL",
	"error":     "Error",
	"request":   "Attempt",
	"timeout":   "Wait",
	"remaining": "RetriesLeft",
}

func (l *retryLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if name, ok := fieldNames[key]; ok {
			key = name
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Info(msg)
}

// Debug promotes retries to info so a flaky API shows up in default logs.
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	if strings.HasPrefix(msg, "retrying") {
		l.with(keysAndValues).Info(msg)
		return
	}
	l.with(keysAndValues).Debug(msg)
}

// logRetry warns about every repeated attempt of a request update, naming the
// Testing Farm request it belongs to.
func (l *retryLogger) logRetry(_ rh.Logger, req *http.Request, attempt int) {
	if attempt == 0 {
		return
	}
	l.entry.WithFields(logrus.Fields{
		"Request": path.Base(req.URL.Path),
		"Attempt": attempt,
	}).Warn("retrying Testing Farm request update")
}
