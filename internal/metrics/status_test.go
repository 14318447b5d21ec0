package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"testing"
)

func TestSortErrorCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int64
		want   []ErrorCount
	}{
		{
			name:   "nil counts",
			counts: nil,
			want:   nil,
		},
		{
			name:   "empty counts",
			counts: map[string]int64{},
			want:   nil,
		},
		{
			name:   "sorted by count desc",
			counts: map[string]int64{"TIMEOUT": 2, "INVALID_TRANSITION": 7, "INSTANCE_NOT_FOUND": 4},
			want: []ErrorCount{
				{Label: "INVALID_TRANSITION", Count: 7},
				{Label: "INSTANCE_NOT_FOUND", Count: 4},
				{Label: "TIMEOUT", Count: 2},
			},
		},
		{
			name:   "ties broken by label",
			counts: map[string]int64{"b": 1, "a": 1, "c": 3},
			want: []ErrorCount{
				{Label: "c", Count: 3},
				{Label: "a", Count: 1},
				{Label: "b", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SortErrorCounts(tt.counts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SortErrorCounts() = %v, want %v", got, tt.want)
			}
		})
	}
}

type codeOnly struct{}

func (codeOnly) Error() string     { return "rate limited" }
func (codeOnly) ErrorCode() string { return "RATE_LIMITED" }

type customFailure struct{}

func (*customFailure) Error() string { return "custom" }

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", codeOnly{}, "RATE_LIMITED"},
		{"wrapped coded", fmt.Errorf("apply: %w", codeOnly{}), "RATE_LIMITED"},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), "Context deadline exceeded"},
		{"canceled", context.Canceled, "Context canceled"},
		{"net", fmt.Errorf("dial: %w", &net.OpError{Op: "dial", Err: errors.New("refused")}), "Network error"},
		{"custom type", &customFailure{}, "Custom Failure (metrics)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(tt.err); got != tt.want {
				t.Errorf("ErrorLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := map[string]string{
		"":                                "Unknown error",
		"*context.deadlineExceededError":  "Context deadline exceeded",
		"*net.OpError":                    "Network error",
		"*github.com/x/y/pkg.HTTPTimeout": "HTTP Timeout (pkg)",
		"main.localErr":                   "Local Err",
	}
	for in, want := range tests {
		if got := FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}
