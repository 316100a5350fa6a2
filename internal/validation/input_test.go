package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{
			name:    "valid user ID",
			userID:  "user_123-abc",
			wantErr: false,
		},
		{
			name:    "empty user ID",
			userID:  "",
			wantErr: true,
		},
		{
			name:    "user ID at max length",
			userID:  strings.Repeat("a", 100),
			wantErr: false,
		},
		{
			name:    "user ID too long",
			userID:  strings.Repeat("a", 101),
			wantErr: true,
		},
		{
			name:    "user ID with spaces",
			userID:  "invalid id",
			wantErr: true,
		},
		{
			name:    "user ID with colon",
			userID:  "coach:u1",
			wantErr: true,
		},
		{
			name:    "user ID with dots",
			userID:  "../etc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != "userId" {
				t.Errorf("expected a userId field error, got %v", err)
			}
		})
	}
}

func TestValidateSearch(t *testing.T) {
	tests := []struct {
		name    string
		q       string
		want    string
		wantErr bool
	}{
		{name: "empty", q: "", want: ""},
		{name: "trimmed", q: "  kim  ", want: "kim"},
		{name: "hangul at limit", q: strings.Repeat("김", 100), want: strings.Repeat("김", 100)},
		{name: "too long", q: strings.Repeat("a", 101), wantErr: true},
		{name: "invalid UTF-8", q: string([]byte{0xff, 0xfe}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSearch(tt.q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSearch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateSearch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldError(t *testing.T) {
	err := error(&FieldError{Field: "page", Message: "page must be an integer"})
	if err.Error() != "page: page must be an integer" {
		t.Errorf("Error() = %q", err.Error())
	}
}
