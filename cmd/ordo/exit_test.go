package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "exit code 0 no message",
			err:      cli.Exit("", 0),
			wantCode: 0,
		},
		{
			name:     "general error",
			err:      cli.Exit("open test list: no such file", 1),
			wantCode: 1,
			wantMsg:  "open test list: no such file",
		},
		{
			name:     "tool unavailable",
			err:      cli.Exit("build tool unavailable", 2),
			wantCode: 2,
			wantMsg:  "build tool unavailable",
		},
		{
			name:     "empty consensus",
			err:      cli.Exit("no accepted orderings", 3),
			wantCode: 3,
			wantMsg:  "no accepted orderings",
		},
		{
			name:     "no data without message",
			err:      cli.Exit("", 4),
			wantCode: 4,
		},
		{
			name:     "wrapped exit coder",
			err:      errors.Join(errors.New("context"), cli.Exit("inner error", 42)),
			wantCode: 42,
			wantMsg:  "inner error",
		},
		{
			name:     "regular error",
			err:      errors.New("regular error"),
			wantCode: 1,
			wantMsg:  "Error: regular error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
