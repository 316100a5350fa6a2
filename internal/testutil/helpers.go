package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// KST returns the instant of the given wall-clock time in Korea.
func KST(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, kst)
}

// ParseJSONResponse decodes JSON response body into v
func ParseJSONResponse(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v. Body: %s", err, w.Body.String())
	}
}

// AssertStatus checks HTTP status code matches expected
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()

	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertFieldError checks a 400 response names the offending field.
func AssertFieldError(t *testing.T, w *httptest.ResponseRecorder, expectedField string) {
	t.Helper()

	AssertStatus(t, w, 400)

	var resp map[string]string
	ParseJSONResponse(t, w, &resp)

	if resp["error"] != "Invalid parameter" {
		t.Errorf("expected error %q, got %q", "Invalid parameter", resp["error"])
	}
	if resp["field"] != expectedField {
		t.Errorf("expected field %q, got %q (message %q)", expectedField, resp["field"], resp["message"])
	}
	if resp["message"] == "" {
		t.Error("expected a non-empty message")
	}
}
