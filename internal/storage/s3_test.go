package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestContainsAny(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		substrs  []string
		expected bool
	}{
		{"contains first", "connection refused", []string{"connection", "timeout"}, true},
		{"contains second", "request timeout", []string{"connection", "timeout"}, true},
		{"contains none", "success", []string{"connection", "timeout"}, false},
		{"empty string", "", []string{"connection"}, false},
		{"no substrings", "connection", nil, false},
		{"case sensitive", "TIMEOUT", []string{"timeout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsAny(tt.s, tt.substrs...); got != tt.expected {
				t.Errorf("containsAny(%q, %v) = %v, want %v", tt.s, tt.substrs, got, tt.expected)
			}
		})
	}
}

func TestClassifyStorageError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		operation string
		want      error
	}{
		{"NoSuchKey", minio.ErrorResponse{Code: "NoSuchKey"}, "download", ErrObjectNotFound},
		{"NoSuchBucket", minio.ErrorResponse{Code: "NoSuchBucket"}, "download", ErrObjectNotFound},
		{"AccessDenied", minio.ErrorResponse{Code: "AccessDenied"}, "upload", ErrAccessDenied},
		{"InvalidAccessKeyId", minio.ErrorResponse{Code: "InvalidAccessKeyId"}, "upload", ErrAccessDenied},
		{"SignatureDoesNotMatch", minio.ErrorResponse{Code: "SignatureDoesNotMatch"}, "list", ErrAccessDenied},
		{"connection refused", errors.New("dial tcp: connection refused"), "upload", ErrNetworkError},
		{"timeout", errors.New("context deadline exceeded: timeout"), "download", ErrNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyStorageError(tt.err, tt.operation)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyStorageError(%v, %q) = %v, want wrapped %v", tt.err, tt.operation, got, tt.want)
			}
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		if got := classifyStorageError(nil, "upload"); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("unknown error keeps the cause", func(t *testing.T) {
		cause := errors.New("some unknown error")
		got := classifyStorageError(cause, "upload")
		if !errors.Is(got, cause) {
			t.Errorf("expected %v to wrap %v", got, cause)
		}
		for _, sentinel := range []error{ErrObjectNotFound, ErrAccessDenied, ErrNetworkError} {
			if errors.Is(got, sentinel) {
				t.Errorf("unknown error classified as %v", sentinel)
			}
		}
	})
}

func TestS3ConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"S3_ENDPOINT":      "minio:9000",
		"S3_ACCESS_KEY":    "key",
		"S3_SECRET_KEY":    "secret",
		"S3_BUCKET":        "snapshots",
		"S3_USE_SSL":       "false",
		"S3_CREATE_BUCKET": "true",
	}
	cfg, err := S3ConfigFromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("S3ConfigFromEnv: %v", err)
	}
	want := S3Config{Endpoint: "minio:9000", AccessKeyID: "key", SecretAccessKey: "secret", BucketName: "snapshots", CreateBucket: true}
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}

	delete(env, "S3_BUCKET")
	if _, err := S3ConfigFromEnv(func(k string) string { return env[k] }); err == nil || !strings.Contains(err.Error(), "S3_BUCKET") {
		t.Errorf("missing bucket: err = %v", err)
	}
}
