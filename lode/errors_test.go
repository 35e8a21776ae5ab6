package lode

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"permission denied for /data/output", ErrPermissionDenied},
		{"open /tmp/file: EACCES", ErrPermissionDenied},
		{"write /data/output: no space left on device", ErrDiskFull},
		{"quota exceeded for user", ErrDiskFull},
		{"no such file or directory", ErrNotFound},
		{"NoSuchKey: The specified key does not exist", ErrNotFound},
		{"NoSuchBucket: bucket gone", ErrNotFound},
		{"SlowDown: please reduce request rate", ErrThrottled},
		{"TooManyRequests: rate limit exceeded", ErrThrottled},
		{"NoCredentialProviders: no valid providers in chain", ErrAuth},
		{"ExpiredToken: the security token has expired", ErrAuth},
		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},
		{"something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := classifyError(errors.New(tt.msg))
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyError_TypedTimeout(t *testing.T) {
	if got := classifyError(context.DeadlineExceeded); !errors.Is(got, ErrTimeout) {
		t.Errorf("DeadlineExceeded classified as %v", got)
	}
}

func TestClassifyStorageError(t *testing.T) {
	if ClassifyStorageError(nil) != nil {
		t.Error("nil error must classify as nil")
	}

	wrapped := fmt.Errorf("flush steps: %w", WrapWriteError(errors.New("disk full"), "ordo/x"))
	if got := ClassifyStorageError(wrapped); got != ErrDiskFull {
		t.Errorf("ClassifyStorageError = %v, want ErrDiskFull", got)
	}

	if got := ClassifyStorageError(errors.New("403")); got != ErrAccessDenied {
		t.Errorf("unwrapped error classified as %v", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := errors.New("permission denied")
	err := WrapReadError(cause, "ordo/snapshots")

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Op != "read" || se.Path != "ordo/snapshots" {
		t.Errorf("op/path = %s/%s", se.Op, se.Path)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is(err, ErrPermissionDenied)")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost from chain")
	}

	if WrapWriteError(nil, "x") != nil || WrapReadError(nil, "x") != nil || WrapInitError(nil, "x") != nil {
		t.Error("wrapping nil must return nil")
	}
}
