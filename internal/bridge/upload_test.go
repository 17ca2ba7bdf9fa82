package bridge

import (
	"strings"
	"testing"
)

func TestIsTextFile(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		expected bool
	}{
		{"notes", "text/plain", true},
		{"main.TF", "", true},
		{"deploy.ps1", "application/octet-stream", true},
		{".env", "", true},
		{"archive.tar.gz", "application/gzip", false},
		{"Makefile", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTextFile(tt.name, tt.mimeType); got != tt.expected {
				t.Errorf("isTextFile(%q, %q) = %v, expected %v", tt.name, tt.mimeType, got, tt.expected)
			}
		})
	}
}

func TestFileLabel(t *testing.T) {
	if got := fileLabel("app.log"); got != "log" {
		t.Errorf("Expected log, got %q", got)
	}
	if got := fileLabel("Dockerfile"); got != "Dockerfile" {
		t.Errorf("Expected whole name without a dot, got %q", got)
	}
	if got := fileLabel("trailing."); got != "text" {
		t.Errorf("Expected text for empty extension, got %q", got)
	}
}

func TestUploadSummary_Truncates(t *testing.T) {
	content := strings.Repeat("é", uploadPreviewLimit+10)
	summary := uploadSummary("big.txt", content)

	if !strings.Contains(summary, "\n...(truncated in UI)...\n```") {
		t.Error("Expected truncation marker")
	}
	if n := strings.Count(summary, "é"); n != uploadPreviewLimit {
		t.Errorf("Expected %d preview characters, got %d", uploadPreviewLimit, n)
	}
}

func TestUploadSummary_Short(t *testing.T) {
	got := uploadSummary("a.json", `{"ok":true}`)
	want := "Uploaded File: **a.json**\n```json\n{\"ok\":true}\n```"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestUploadEnvelope(t *testing.T) {
	got := uploadEnvelope("x.sh", "echo hi")
	want := "[SYSTEM: USER UPLOADED FILE \"x.sh\"]\n```\necho hi\n```"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
