package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nmorales94/swapflow/internal/model"
)

func TestRenderJSON(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"path": "wrap", "provider": "local"},
		Meta:    model.EnvelopeMeta{Command: "quote", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["version"] != model.EnvelopeVersion || out["success"] != true {
		t.Fatalf("unexpected envelope: %s", buf.String())
	}
	data, ok := out["data"].(map[string]any)
	if !ok || data["path"] != "wrap" {
		t.Fatalf("unexpected data: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"sell": "USDC", "buy": "WETH"},
		Meta:    model.EnvelopeMeta{Command: "quote", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "success=true") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderErrorEnvelope(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error:   &model.ErrorBody{Code: 15, Type: "below_minimum", Message: "amount below minimum"},
		Meta:    model.EnvelopeMeta{Command: "quote", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	errBody, ok := out["error"].(map[string]any)
	if !ok || errBody["type"] != "below_minimum" {
		t.Fatalf("unexpected error body: %s", buf.String())
	}
}
