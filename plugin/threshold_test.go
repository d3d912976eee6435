package plugin

import (
	"strings"
	"testing"

	"github.com/drone/drone-tf-xunit/results"
	"github.com/google/go-cmp/cmp"
)

// TestValidateThresholds tests the validateThresholds function for various scenarios
func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name      string
		totals    Totals
		args      Args
		expectErr bool
		errMsg    string
	}{
		{
			name:   "ValidAbsoluteThresholds",
			totals: Totals{Total: 10, Failures: 1, Skipped: 1},
			args: Args{
				FailedFails:   2,
				FailedSkips:   2,
				ThresholdMode: "absolute",
			},
			expectErr: false,
		},
		{
			name:   "DefaultModeIsAbsolute",
			totals: Totals{Total: 10, Failures: 3},
			args: Args{
				FailedFails: 2,
			},
			expectErr: true,
			errMsg:    "absolute threshold validation failed: number of failed tests (3) exceeded the failure threshold (2)",
		},
		{
			name:   "ExceededAbsoluteSkipThreshold",
			totals: Totals{Total: 10, Failures: 1, Skipped: 3},
			args: Args{
				FailedFails:   2,
				FailedSkips:   2,
				ThresholdMode: "absolute",
			},
			expectErr: true,
			errMsg:    "number of skipped tests (3) exceeded the skip threshold (2)",
		},
		{
			name:   "ExceededPercentageFailureThreshold",
			totals: Totals{Total: 100, Failures: 15, Skipped: 5},
			args: Args{
				FailedFails:   10,
				FailedSkips:   10,
				ThresholdMode: "percentage",
			},
			expectErr: true,
			errMsg:    "percentage threshold validation failed: failure rate (15.00%) exceeded the threshold (10%)",
		},
		{
			name:   "ValidPercentageThresholds",
			totals: Totals{Total: 100, Failures: 5, Skipped: 5},
			args: Args{
				FailedFails:   10,
				FailedSkips:   10,
				ThresholdMode: "Percentage",
			},
			expectErr: false,
		},
		{
			name:   "UnstableOnlyWhenJobFailed",
			totals: Totals{Total: 10, Failures: 3},
			args: Args{
				UnstableFails: 2,
			},
			expectErr: false,
		},
		{
			name:   "UnstableAbsolute",
			totals: Totals{Total: 10, Failures: 3},
			args: Args{
				UnstableFails: 2,
				JobStatus:     "failed",
			},
			expectErr: true,
			errMsg:    "build marked as fail: absolute unstable threshold validation failed",
		},
		{
			name:   "UnstablePercentage",
			totals: Totals{Total: 10, Skipped: 5},
			args: Args{
				UnstableSkips: 20,
				JobStatus:     "FAILED",
				ThresholdMode: "percentage",
			},
			expectErr: true,
			errMsg:    "skip rate (50.00%) exceeded the threshold (20%)",
		},
		{
			name:   "FailedConfiguration",
			totals: Totals{Total: 10, Failures: 1, ConfigFailures: 1},
			args: Args{
				FailureOnFailedTestConfig: true,
			},
			expectErr: true,
			errMsg:    "failed configuration methods",
		},
		{
			name:   "FailedTestsAreNotConfiguration",
			totals: Totals{Total: 10, Failures: 1},
			args: Args{
				FailureOnFailedTestConfig: true,
			},
			expectErr: false,
		},
		{
			name:   "InvalidMode",
			totals: Totals{},
			args: Args{
				ThresholdMode: "relative",
			},
			expectErr: true,
			errMsg:    "invalid ThresholdMode",
		},
		{
			name:   "EdgeCaseVeryHighValues",
			totals: Totals{Total: 1000000, Failures: 500000, Skipped: 400000},
			args: Args{
				FailedFails:   600000,
				FailedSkips:   500000,
				ThresholdMode: "absolute",
			},
			expectErr: false,
		},
		{
			name:   "EdgeCaseEmptyResults",
			totals: Totals{},
			args: Args{
				FailedFails:   1,
				FailedSkips:   1,
				ThresholdMode: "percentage",
			},
			expectErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateThresholds(tc.totals, tc.args)

			if tc.expectErr {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("validateThresholds() expected error %q but got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("validateThresholds() unexpected error: %v", err)
			}
		})
	}
}

func TestResultTotals(t *testing.T) {
	tree := &results.Results{
		TestSuites: []*results.TestSuite{
			{
				Name: "a",
				TestCases: []*results.TestCase{
					{Name: "pass", Result: results.OutcomePassed, Duration: ms(3)},
					{Name: "fail", Result: results.OutcomeFailed, Duration: ms(4)},
				},
			},
			{
				Name: "b",
				TestCases: []*results.TestCase{
					{Name: "skip", Result: results.OutcomeSkipped},
					{Name: "error", Result: results.OutcomeError},
					{Name: "setup", Result: results.OutcomeFailed, TestType: "configuration"},
				},
			},
		},
	}

	expected := Totals{Total: 5, Failures: 3, Skipped: 1, ConfigFailures: 1, DurationMS: 7}
	if diff := cmp.Diff(expected, resultTotals(tree)); diff != "" {
		t.Errorf("resultTotals() mismatch (-want +got):\n%s", diff)
	}
}
