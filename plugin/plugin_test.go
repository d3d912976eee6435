package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drone/drone-tf-xunit/tfapi"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

// LogEntry captures a single log entry.
type LogEntry struct {
	Level   logrus.Level
	Message string
	Fields  logrus.Fields
}

// MockLogHook is a hook to capture log entries.
type MockLogHook struct {
	mu      sync.Mutex
	Entries []LogEntry
}

// Fire is called for each log entry.
func (hook *MockLogHook) Fire(entry *logrus.Entry) error {
	hook.mu.Lock()
	defer hook.mu.Unlock()
	hook.Entries = append(hook.Entries, LogEntry{
		Level:   entry.Level,
		Message: entry.Message,
		Fields:  entry.Data,
	})
	return nil
}

// Levels returns the log levels supported by the hook.
func (hook *MockLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Messages returns the captured messages in order.
func (hook *MockLogHook) Messages() []string {
	hook.mu.Lock()
	defer hook.mu.Unlock()
	var messages []string
	for _, entry := range hook.Entries {
		messages = append(messages, entry.Message)
	}
	return messages
}

// NewMockLogHook creates a new instance of MockLogHook.
func NewMockLogHook() *MockLogHook {
	return &MockLogHook{}
}

// captureLogs installs a fresh hook on the standard logger for the duration
// of the test.
func captureLogs(t *testing.T) *MockLogHook {
	t.Helper()

	hook := NewMockLogHook()
	hooks := make(logrus.LevelHooks)
	hooks.Add(hook)

	logger := logrus.StandardLogger()
	previous := logger.ReplaceHooks(hooks)
	level := logger.GetLevel()
	logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logger.ReplaceHooks(previous)
		logger.SetLevel(level)
	})
	return hook
}

// TestValidateInputs tests the ValidateInputs function with various cases
func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name      string
		args      Args
		expectErr bool
		errMsg    string
	}{
		{
			name: "ValidInputs",
			args: Args{
				ReportFilenamePattern: "testdata/*.xml",
				FailedFails:           1,
				FailedSkips:           0,
				ThresholdMode:         "absolute",
			},
			expectErr: false,
		},
		{
			name: "ScheduleFileOnly",
			args: Args{
				ScheduleFile: "testdata/schedule.yaml",
			},
			expectErr: false,
		},
		{
			name: "MissingSources",
			args: Args{
				FailedFails:   1,
				FailedSkips:   0,
				ThresholdMode: "absolute",
			},
			expectErr: true,
			errMsg:    "missing required parameter",
		},
		{
			name: "NegativeThreshold",
			args: Args{
				ReportFilenamePattern: "testdata/*.xml",
				UnstableSkips:         -1,
			},
			expectErr: true,
			errMsg:    "threshold values must be non-negative",
		},
		{
			name: "InvalidThresholdMode",
			args: Args{
				ReportFilenamePattern: "testdata/*.xml",
				ThresholdMode:         "invalid",
			},
			expectErr: true,
			errMsg:    "invalid ThresholdMode",
		},
		{
			name: "UpperCaseThresholdMode",
			args: Args{
				ReportFilenamePattern: "testdata/*.xml",
				ThresholdMode:         "PERCENTAGE",
			},
			expectErr: false,
		},
		{
			name: "NegativeIndent",
			args: Args{
				ScheduleFile: "testdata/schedule.yaml",
				Indent:       -2,
			},
			expectErr: true,
			errMsg:    "invalid Indent",
		},
		{
			name: "IncompletePolarion",
			args: Args{
				ScheduleFile:         "testdata/schedule.yaml",
				EnablePolarion:       true,
				PolarionLookupMethod: "id",
				PolarionProjectID:    "RHEL",
			},
			expectErr: true,
			errMsg:    "missing Polarion parameters",
		},
		{
			name: "CompletePolarion",
			args: Args{
				ScheduleFile:                "testdata/schedule.yaml",
				EnablePolarion:              true,
				PolarionLookupMethod:        "custom",
				PolarionLookupMethodFieldID: "testcaseid",
				PolarionProjectID:           "RHEL",
			},
			expectErr: false,
		},
		{
			name: "RequestWithoutAPI",
			args: Args{
				ScheduleFile:         "testdata/schedule.yaml",
				TestingFarmRequestID: "req-1",
			},
			expectErr: true,
			errMsg:    "TestingFarmAPIURL",
		},
		{
			name: "PartialS3Credentials",
			args: Args{
				ScheduleFile:  "testdata/schedule.yaml",
				S3Bucket:      "results",
				S3AccessKeyID: "key",
			},
			expectErr: true,
			errMsg:    "must be set together",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateInputs(tc.args)

			// Check error
			if tc.expectErr {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("ValidateInputs() expected error %q but got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("ValidateInputs() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateInputsWarnsOnDisabledPolarion(t *testing.T) {
	hook := captureLogs(t)

	err := ValidateInputs(Args{
		ScheduleFile:      "testdata/schedule.yaml",
		PolarionProjectID: "RHEL",
	})
	if err != nil {
		t.Fatalf("ValidateInputs() unexpected error: %v", err)
	}

	expected := []string{"Polarion parameters are ignored as EnablePolarion is false"}
	if diff := cmp.Diff(expected, hook.Messages()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

// requestRecorder is a fake Testing Farm API recording request updates.
type requestRecorder struct {
	mu      sync.Mutex
	paths   []string
	updates []tfapi.Update
	status  int
}

func (r *requestRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var update tfapi.Update
	if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.paths = append(r.paths, req.Method+" "+req.URL.Path)
	r.updates = append(r.updates, update)

	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestExec(t *testing.T) {
	dir := t.TempDir()
	recorder := &requestRecorder{}
	server := httptest.NewServer(recorder)
	defer server.Close()

	args := Args{
		ScheduleFile:          "../testdata/schedule.yaml",
		ReportFilenamePattern: "../testdata/*.xml",
		OverallResultMap:      []string{"../testdata/overall-result-map.yaml"},
		ArtifactsURL:          "http://artifacts.example.com/req-1",
		XUnitFile:             filepath.Join(dir, "xunit.xml"),
		XUnitTestingFarmFile:  filepath.Join(dir, "xunit-testing-farm.xml"),
		PrettyPrint:           true,
		Indent:                2,
		TestingThread:         "thread-1",
		ArtifactID:            "123456",
		ArtifactNamespace:     "koji-build",
		TestingFarmAPIURL:     server.URL,
		TestingFarmRequestID:  "req-1",
		TestingFarmAPIKey:     "secret",
		FailedFails:           4,
		ThresholdMode:         ThresholdModeAbsolute,
	}

	if err := Exec(context.Background(), args); err != nil {
		t.Fatalf("Exec() unexpected error: %v", err)
	}

	tf, err := os.ReadFile(args.XUnitTestingFarmFile)
	if err != nil {
		t.Fatalf("Testing Farm xUnit was not written: %v", err)
	}
	document := string(tf)
	for _, want := range []string{
		`<testsuites overall-result="info">`,
		`<property name="baseosci.id.testing-thread" value="thread-1"/>`,
		`<testsuite name="/plans/upgrade" result="failed"`,
		`<testsuite name="Suite2" result="failed"`,
		`href="http://artifacts.example.com/req-1/work-smoke/login/output.txt"`,
	} {
		if !strings.Contains(document, want) {
			t.Errorf("Testing Farm xUnit does not contain %q", want)
		}
	}

	generic, err := os.ReadFile(args.XUnitFile)
	if err != nil {
		t.Fatalf("xUnit was not written: %v", err)
	}
	if !strings.Contains(string(generic), `<testsuite name="Suite1" tests="3" failures="1" errors="0" skipped="0">`) {
		t.Errorf("xUnit does not contain Suite1:\n%s", generic)
	}

	expectedPaths := []string{"PUT /v0.1/requests/req-1"}
	if diff := cmp.Diff(expectedPaths, recorder.paths); diff != "" {
		t.Fatalf("request updates mismatch (-want +got):\n%s", diff)
	}
	update := recorder.updates[0]
	expected := tfapi.Update{
		APIKey: "secret",
		State:  tfapi.StateComplete,
		Result: &tfapi.Result{
			Overall: tfapi.OverallResultUnknown,
			XUnit:   document,
		},
		Run: &tfapi.Run{Artifacts: "http://artifacts.example.com/req-1"},
	}
	if diff := cmp.Diff(expected, update); diff != "" {
		t.Errorf("request update mismatch (-want +got):\n%s", diff)
	}
}

func TestExecReportsErrorState(t *testing.T) {
	recorder := &requestRecorder{}
	server := httptest.NewServer(recorder)
	defer server.Close()

	args := Args{
		ReportFilenamePattern: "../testdata/*.xml",
		TestingFarmAPIURL:     server.URL,
		TestingFarmRequestID:  "req-2",
		FailedFails:           1,
	}

	err := Exec(context.Background(), args)
	if err == nil || !strings.Contains(err.Error(), "absolute threshold validation failed") {
		t.Fatalf("Exec() expected a threshold error, got %v", err)
	}

	// the request was completed before the threshold gate ran
	if len(recorder.updates) != 1 || recorder.updates[0].State != tfapi.StateComplete {
		t.Fatalf("expected a single complete update, got %+v", recorder.updates)
	}
}

func TestExecReportsFailure(t *testing.T) {
	tests := []struct {
		name   string
		args   Args
		errMsg string
	}{
		{
			name:   "MissingSchedule",
			args:   Args{ScheduleFile: "../testdata/missing.yaml"},
			errMsg: "failed to read schedule file",
		},
		{
			name:   "NullTestCase",
			args:   Args{ScheduleFile: "../testdata/schedule-null-case.yaml", RefreshInterval: time.Millisecond},
			errMsg: "test case #0 is empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &requestRecorder{}
			server := httptest.NewServer(recorder)
			defer server.Close()

			args := tc.args
			args.TestingFarmAPIURL = server.URL
			args.TestingFarmRequestID = "req-3"

			err := Exec(context.Background(), args)
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Fatalf("Exec() expected error %q, got %v", tc.errMsg, err)
			}

			if len(recorder.updates) != 1 {
				t.Fatalf("expected a single update, got %d", len(recorder.updates))
			}
			update := recorder.updates[0]
			if update.State != tfapi.StateError {
				t.Errorf("expected state %s, got %s", tfapi.StateError, update.State)
			}
			if update.Result == nil || update.Result.Overall != "error" || update.Result.Summary != err.Error() {
				t.Errorf("unexpected error result: %+v", update.Result)
			}
		})
	}
}

func TestExecConflictIsNotFatal(t *testing.T) {
	recorder := &requestRecorder{status: http.StatusConflict}
	server := httptest.NewServer(recorder)
	defer server.Close()

	hook := captureLogs(t)

	args := Args{
		ScheduleFile:         "../testdata/schedule.yaml",
		TestingFarmAPIURL:    server.URL,
		TestingFarmRequestID: "req-4",
	}
	if err := Exec(context.Background(), args); err != nil {
		t.Fatalf("Exec() unexpected error: %v", err)
	}

	found := false
	for _, message := range hook.Messages() {
		if message == "Testing Farm request was not updated" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a conflict warning")
	}
}

func TestExecWithMixedFiles(t *testing.T) {
	args := Args{
		ReportFilenamePattern: "../testdata/*.xml",
		FailedFails:           4,
		FailedSkips:           1,
		ThresholdMode:         ThresholdModeAbsolute,
	}

	if err := Exec(context.Background(), args); err != nil {
		t.Errorf("Exec failed unexpectedly with error: %v", err)
	}
}

func TestExecNoResults(t *testing.T) {
	tests := []struct {
		name      string
		fail      bool
		expectErr bool
	}{
		{name: "Continue", fail: false},
		{name: "Fail", fail: true, expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Exec(context.Background(), Args{
				ReportFilenamePattern: "../testdata/*.log",
				PluginFailIfNoResults: tc.fail,
			})
			if tc.expectErr && err == nil {
				t.Errorf("Exec() expected error")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("Exec() unexpected error: %v", err)
			}
		})
	}
}
