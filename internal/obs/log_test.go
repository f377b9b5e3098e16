package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLogJSONStampsServiceName(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogJSON(map[string]any{"type": "http", "status": 200})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if line["service"] != serviceName {
		t.Fatalf("unexpected service: %v", line["service"])
	}
	if line["type"] != "http" {
		t.Fatalf("unexpected type: %v", line["type"])
	}
}

func TestLogJSONKeepsCallerServiceField(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogJSON(map[string]any{"service": "migrator"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if line["service"] != "migrator" {
		t.Fatalf("caller service overwritten: %v", line["service"])
	}
}
