package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteReportFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format string
		check  func(t *testing.T, data []byte)
	}{
		{
			format: FormatJSON,
			check: func(t *testing.T, data []byte) {
				var decoded map[string]interface{}
				if err := json.Unmarshal(data, &decoded); err != nil {
					t.Fatalf("invalid JSON: %v", err)
				}
				if decoded["workload"] != "dummy" {
					t.Errorf("workload = %v", decoded["workload"])
				}
			},
		},
		{
			format: FormatYAML,
			check: func(t *testing.T, data []byte) {
				if !strings.Contains(string(data), "session_id: 01HZYSESSION") {
					t.Errorf("unexpected YAML:\n%s", data)
				}
			},
		},
		{
			format: FormatText,
			check: func(t *testing.T, data []byte) {
				if !strings.Contains(string(data), "--- Session 01HZYSESSION (dummy) ---") {
					t.Errorf("unexpected text:\n%s", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path := filepath.Join(dir, "nested", "report."+tt.format)
			if err := WriteReportFile(path, tt.format, sampleReport()); err != nil {
				t.Fatalf("WriteReportFile() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			tt.check(t, data)
		})
	}
}

func TestWriteReportFileUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xml")
	if err := WriteReportFile(path, "xml", sampleReport()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWriteReportFileConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- WriteReportFile(path, FormatJSON, sampleReport())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("WriteReportFile() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("concurrent writes produced invalid JSON: %v\n%s", err, data)
	}
}
