package validation

import (
	"strings"
	"testing"
)

func TestValidateUserCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid code",
			code:    "BCDH-KLMN",
			wantErr: false,
		},
		{
			name:    "invalid characters",
			code:    "ABCD-EFGH", // contains vowels
			wantErr: true,
			errMsg:  "using only allowed characters",
		},
		{
			name:    "too short",
			code:    "BCD-KLM",
			wantErr: true,
			errMsg:  "must be in format",
		},
		{
			name:    "missing separator",
			code:    "BCDHKLMN",
			wantErr: true,
			errMsg:  "must be in format",
		},
		{
			name:    "too many repeated characters",
			code:    "BBBK-LMNN",
			wantErr: true,
			errMsg:  "too many repeated characters",
		},
		{
			name:    "with whitespace",
			code:    " BCDH-KLMN ",
			wantErr: false,
		},
		{
			name:    "mixed case",
			code:    "bcdh-klmn",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserCode(tt.code)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BCDH-KLMN", "BCDHKLMN"},
		{"bcdh-klmn", "BCDHKLMN"},
		{" BCDH-KLMN ", "BCDHKLMN"},
		{"BCDHKLMN", "BCDHKLMN"},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCode(t *testing.T) {
	if got := FormatCode("BCDHKLMN"); got != "BCDH-KLMN" {
		t.Errorf("FormatCode = %q, want BCDH-KLMN", got)
	}
	// Codes of unexpected length pass through unchanged
	if got := FormatCode("BCD"); got != "BCD" {
		t.Errorf("FormatCode = %q, want BCD", got)
	}
}
