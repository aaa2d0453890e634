package models

import "testing"

func TestIngestedFileStatus(t *testing.T) {
	tests := []struct {
		name string
		file IngestedFile
		want ExtractionStatus
	}{
		{"pending", IngestedFile{Category: CategoryPDF}, StatusPending},
		{"extracting", IngestedFile{Category: CategoryPDF, Extracting: true}, StatusExtracting},
		{"done", IngestedFile{Category: CategoryPDF, HasResult: true, ExtractedText: "hola"}, StatusDone},
		{"error flag", IngestedFile{Category: CategoryPDF, HasResult: true, IsError: true, ExtractedText: "x"}, StatusError},
		{"error marker", IngestedFile{Category: CategoryPDF, HasResult: true, ExtractedText: "Error: broken"}, StatusError},
		{"unsupported", IngestedFile{Category: CategoryUnknown}, StatusUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.file.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayNameAndExtension(t *testing.T) {
	if got := DisplayName("deploy.task"); got != "deploy" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := DisplayName(".env"); got != ".env" {
		t.Errorf("DisplayName dotfile = %q", got)
	}
	if got := Extension("Report.PDF"); got != "pdf" {
		t.Errorf("Extension = %q", got)
	}
	if got := Extension("README"); got != "" {
		t.Errorf("Extension without dot = %q", got)
	}
}

func TestErrorOutcomeAddsMarkerOnce(t *testing.T) {
	if got := ErrorOutcome("boom").Text; got != "Error: boom" {
		t.Errorf("got %q", got)
	}
	if got := ErrorOutcome("Error: boom").Text; got != "Error: boom" {
		t.Errorf("got %q", got)
	}
}
