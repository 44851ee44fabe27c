package entity

import (
	"encoding/json"
	"testing"
)

func TestEventText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"data as string", `{"type":"terminal_output","data":"$ ls\n"}`, "$ ls\n"},
		{"data object with text", `{"type":"chat-message","data":{"text":"hi"}}`, "hi"},
		{"data object with message", `{"type":"chat-message","data":{"message":"yo"}}`, "yo"},
		{"payload object with output", `{"type":"agentOutput","payload":{"output":"done"}}`, "done"},
		{"empty", `{"type":"previewUpdated"}`, ""},
		{"unrelated object", `{"type":"terminal_connected","data":{"cols":80}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			if err := json.Unmarshal([]byte(tt.raw), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := ev.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReportEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		steps []StepResult
		want  bool
	}{
		{"all passed", []StepResult{{Status: StepPassed}}, true},
		{"soft failure", []StepResult{{Status: StepFailed, ErrorClass: "error"}}, true},
		{"assertion failure", []StepResult{{Status: StepFailed, ErrorClass: "assertion"}}, false},
		{"critical failure", []StepResult{{Status: StepFailed, Critical: true, ErrorClass: "api"}}, false},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Steps: tt.steps}
			r.Evaluate()
			if r.Passed != tt.want {
				t.Errorf("Passed = %v, want %v", r.Passed, tt.want)
			}
		})
	}
}
