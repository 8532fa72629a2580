package models

import "testing"

func TestExecutionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status ExecutionStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusAborted, true},
		// unrecognized values must not keep a poll loop alive
		{StatusUnknown, true},
		{ExecutionStatus("other"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestJob_FullName(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{"without group", Job{Name: "deploy"}, "deploy"},
		{"single group level", Job{Name: "deploy", GroupPath: "ops"}, "ops/deploy"},
		{"nested group", Job{Name: "deploy", GroupPath: "ops/prod"}, "ops/prod/deploy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}
