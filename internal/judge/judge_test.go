package judge

import (
	"testing"
)

func TestParseVerdict_ValidJSON(t *testing.T) {
	response := `{
  "success": true,
  "confidence": 0.9,
  "issues": ["minor layout shift"],
  "feedback": "looks right"
}`

	v, err := parseVerdict(response)
	if err != nil {
		t.Fatalf("parseVerdict failed: %v", err)
	}

	if !v.Success {
		t.Error("Expected success=true")
	}
	if v.Confidence != 0.9 {
		t.Errorf("Expected confidence=0.9, got %f", v.Confidence)
	}
	if len(v.Issues) != 1 || v.Issues[0] != "minor layout shift" {
		t.Errorf("Expected issues=[\"minor layout shift\"], got %v", v.Issues)
	}
	if v.Feedback != "looks right" {
		t.Errorf("Expected feedback=\"looks right\", got %s", v.Feedback)
	}
}

func TestParseVerdict_WithTextAround(t *testing.T) {
	response := `Here's my review:

{
  "success": false,
  "confidence": 0.3,
  "issues": ["agent card missing", "status never rendered"],
  "feedback": "the dashboard appears empty"
}

Hope this helps!`

	v, err := parseVerdict(response)
	if err != nil {
		t.Fatalf("parseVerdict failed: %v", err)
	}

	if v.Success {
		t.Error("Expected success=false")
	}
	if len(v.Issues) != 2 {
		t.Errorf("Expected 2 issues, got %d", len(v.Issues))
	}
}

func TestParseVerdict_InvalidJSON(t *testing.T) {
	if _, err := parseVerdict("This is not JSON at all"); err == nil {
		t.Error("Expected error for invalid JSON")
	}
	if _, err := parseVerdict("{broken"); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}
