package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvidenceObjectKey(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"proj-1/disputes/12.jpg", "proj-1/disputes/12.jpg"},
		{"/proj-1/disputes/12.jpg", "proj-1/disputes/12.jpg"},
		{"gs://field-evidence/proj-1/a.png", "proj-1/a.png"},
		{"https://storage.googleapis.com/field-evidence/proj-1/a.png", "proj-1/a.png"},
		{"https://field-evidence.storage.googleapis.com/proj-1/a.png", "proj-1/a.png"},
		{"https://example.com/a.png", ""},
		{"../etc/passwd", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := EvidenceObjectKey(tc.in); got != tc.expected {
			t.Fatalf("EvidenceObjectKey(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestSignEvidenceURL_DisabledWithoutBucket(t *testing.T) {
	t.Setenv("GCS_BUCKET", "")
	_, err := SignEvidenceURL(context.Background(), "proj/a.png", time.Hour)
	if !errors.Is(err, ErrEvidenceSigningDisabled) {
		t.Fatalf("expected ErrEvidenceSigningDisabled, got %v", err)
	}
}
