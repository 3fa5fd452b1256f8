package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestAdjustScore(t *testing.T) {
	tests := []struct {
		score int
		toxic bool
		want  int
	}{
		{0, false, 0},
		{3, false, 0},
		{50, false, 45},
		{0, true, 10},
		{95, true, 100},
		{100, true, 100},
	}
	for _, tt := range tests {
		if got := AdjustScore(tt.score, tt.toxic); got != tt.want {
			t.Errorf("AdjustScore(%d, %v) = %d, want %d", tt.score, tt.toxic, got, tt.want)
		}
	}
}

func TestSeverityEstimates(t *testing.T) {
	if got := FlaggedSeverity(10); got != 35 {
		t.Errorf("FlaggedSeverity(10) = %d, want 35", got)
	}
	if got := FlaggedSeverity(90); got != 100 {
		t.Errorf("FlaggedSeverity(90) = %d, want 100", got)
	}
	if got := FallbackSeverity(20); got != 35 {
		t.Errorf("FallbackSeverity(20) = %d, want 35", got)
	}
	if got := FallbackSeverity(99); got != 100 {
		t.Errorf("FallbackSeverity(99) = %d, want 100", got)
	}
}

func TestReportSeverity(t *testing.T) {
	tests := []struct {
		reason string
		want   int
	}{
		{"Threatening me", 95},
		{"hate speech", 90},
		{"used a SLUR", 90},
		{"explicit content", 85},
		{"spam", 60},
		{"Inappropriate content", 75},
		{"", 75},
		// First match in order wins.
		{"spam with threats", 95},
	}
	for _, tt := range tests {
		if got := ReportSeverity(tt.reason); got != tt.want {
			t.Errorf("ReportSeverity(%q) = %d, want %d", tt.reason, got, tt.want)
		}
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"valid", "hello there", nil},
		{"empty", "", ErrEmptyMessage},
		{"max runes", strings.Repeat("a", MaxTextChars), nil},
		{"too many runes", strings.Repeat("a", MaxTextChars+1), ErrMessageTooLong},
		{"too many bytes", strings.Repeat("é", MaxMessageBytes/2+1), ErrMessageTooLong},
		{"invalid utf8", "bad \xff byte", ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationNotice(t *testing.T) {
	if got := validationNotice(ErrInvalidUTF8); got != "Message contains invalid characters" {
		t.Errorf("invalid utf8 notice = %q", got)
	}
	if got := validationNotice(ValidateMessage(strings.Repeat("a", MaxTextChars+1))); !strings.HasPrefix(got, "Message is too long") {
		t.Errorf("too long notice = %q", got)
	}
}
