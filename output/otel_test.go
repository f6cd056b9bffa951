package output

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"centinela/report"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestNewOtelLoggerDisabledWithoutEndpoint(t *testing.T) {
	o, err := newOtelLogger(Options{})
	if err != nil || o != nil {
		t.Fatalf("expected disabled exporter, got %v (%v)", o, err)
	}
	if o.Endpoint() != "" {
		t.Fatal("nil logger must report an empty endpoint")
	}
	o.EmitReport(report.New("x", time.Now()))
	o.Shutdown(nil)
}

func TestNewOtelLoggerRequiresScheme(t *testing.T) {
	if _, err := newOtelLogger(Options{OtelEndpoint: "localhost:4318"}); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestSanitizeFindingPayload(t *testing.T) {
	payload := map[string]interface{}{
		"title": "Duplicados hash abcdef12",
		"details": map[string]interface{}{
			"archivos": []string{"/a", "/b"},
			"ruta":     "/tmp/x",
			"exe":      "/usr/bin/x",
			"tamano":   5,
		},
	}
	sanitized, ok := sanitizePayload(recordFinding, payload, otelPolicy{}).(map[string]interface{})
	if !ok {
		t.Fatal("expected sanitized map")
	}
	details := sanitized["details"].(map[string]interface{})
	for _, key := range []string{"archivos", "ruta", "exe"} {
		if _, ok := details[key]; ok {
			t.Fatalf("expected %s to be stripped", key)
		}
	}
	if details["archivos_count"] != 2 || details["tamano"] != 5 {
		t.Fatalf("unexpected sanitized details: %#v", details)
	}
	if _, ok := payload["details"].(map[string]interface{})["ruta"]; !ok {
		t.Fatal("expected original payload to remain unchanged")
	}

	kept := sanitizePayload(recordFinding, payload, otelPolicy{includePaths: true}).(map[string]interface{})
	if _, ok := kept["details"].(map[string]interface{})["ruta"]; !ok {
		t.Fatal("expected paths when export is enabled")
	}
}

func TestFindingSemanticAttributes(t *testing.T) {
	item := report.Item{
		Title: "Archivo sospechoso: payload.exe",
		Risk:  report.RiskMedium,
		Details: map[string]any{
			"ruta":        "/tmp/dir/payload.exe",
			"tamano":      int64(42),
			"hash_sha256": "abc123",
			"heuristicas": []string{"suspicious-extension"},
			"firmas":      []string{},
		},
	}
	payload := findingPayload("escaneo_archivos", 0, item)

	attrs := semanticAttributes(recordFinding, payload, otelPolicy{includePaths: true})
	if v, ok := findAttr(attrs, string(semconv.FilePathKey)); !ok || v.AsString() != "/tmp/dir/payload.exe" {
		t.Fatalf("expected file path attribute, got %#v", v)
	}
	if v, ok := findAttr(attrs, string(semconv.FileNameKey)); !ok || v.AsString() != "payload.exe" {
		t.Fatalf("expected file name attribute, got %#v", v)
	}
	if v, ok := findAttr(attrs, string(semconv.FileSizeKey)); !ok || v.AsInt64() != 42 {
		t.Fatalf("expected file size attribute, got %#v", v)
	}
	if v, ok := findAttr(attrs, "centinela.finding.risk"); !ok || v.AsString() != "medium" {
		t.Fatalf("expected risk attribute, got %#v", v)
	}
	if _, ok := findAttr(attrs, "centinela.finding.heuristics"); !ok {
		t.Fatal("expected heuristics attribute")
	}
	if _, ok := findAttr(attrs, "centinela.finding.signatures"); ok {
		t.Fatal("empty signature list should not produce an attribute")
	}

	safe := sanitizePayload(recordFinding, payload, otelPolicy{})
	attrs = semanticAttributes(recordFinding, safe, otelPolicy{})
	if _, ok := findAttr(attrs, string(semconv.FilePathKey)); ok {
		t.Fatal("did not expect file path when paths are disabled")
	}
}

func TestReportPayloadAndAttributes(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := report.New("escaneo_gpu", start)
	r.AddLimitation("No se encontraron procesos GPU o la función no está disponible")
	r.Finish(start.Add(1500 * time.Millisecond))

	payload := reportPayload(r)
	if payload["duration_ms"] != int64(1500) {
		t.Fatalf("unexpected duration %#v", payload["duration_ms"])
	}
	attrs := semanticAttributes(recordReport, payload, otelPolicy{})
	if v, ok := findAttr(attrs, "centinela.report.limitations"); !ok || v.AsInt64() != 1 {
		t.Fatalf("expected limitations count, got %#v", v)
	}
	if v, ok := findAttr(attrs, "centinela.report.name"); !ok || v.AsString() != "escaneo_gpu" {
		t.Fatalf("expected report name, got %#v", v)
	}
}

func TestNormalizeValue(t *testing.T) {
	mem := 512.0
	got := normalizeValue(map[string]interface{}{
		"memoria_gpu_mb": &mem,
		"pid":            int32(7),
		"nada":           (*float64)(nil),
	}).(map[string]interface{})
	if n, ok := got["memoria_gpu_mb"].(json.Number); !ok || n.String() != "512" {
		t.Fatalf("unexpected memory value %#v", got["memoria_gpu_mb"])
	}
	if n, ok := got["pid"].(json.Number); !ok || n.String() != "7" {
		t.Fatalf("unexpected pid value %#v", got["pid"])
	}
	if got["nada"] != nil {
		t.Fatalf("expected nil, got %#v", got["nada"])
	}
	if toLogValue(got["pid"]).AsInt64() != 7 {
		t.Fatal("expected json.Number to convert to int64")
	}
}

func TestWriterExportsToCollector(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, err := New(Options{
		Directory:    t.TempDir(),
		OtelEndpoint: srv.URL + "/v1/logs",
		OtelTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if w.otel == nil || w.otel.Endpoint() != srv.URL+"/v1/logs" {
		t.Fatal("expected OTEL exporter to be configured")
	}
	r := report.New("escaneo_archivos", time.Now())
	r.AddFinding(report.Item{Title: "Archivo sospechoso: a.js", Risk: report.RiskMedium})
	r.Finish(time.Now())
	if _, err := w.Write(r); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	if hits.Load() == 0 {
		t.Fatal("expected at least one export request")
	}
}
