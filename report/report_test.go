package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sample() *ScanReport {
	r := New("escaneo_archivos", t0)
	r.AddFinding(Item{
		Title:           "Archivo sospechoso: setup.bat",
		Details:         map[string]any{"ruta": "/tmp/setup.bat", "firmas": []string{"suspicious-batch-naming"}},
		Risk:            RiskHigh,
		Recommendations: []string{"Enviar a cuarentena", "Eliminar solo tras verificación manual"},
	})
	r.AddFinding(Item{
		Title:   "Archivo sospechoso: run.js",
		Details: map[string]any{"ruta": "/tmp/run.js"},
		Risk:    RiskMedium,
	})
	r.AddLimitationf("No se pudo leer %s: %s", "/tmp/locked", "permission denied")
	r.Set("archivos_escaneados", 3)
	r.Set(KeySuspicious, 2)
	return r
}

func TestEmptyReportFinish(t *testing.T) {
	r := New("vacio", t0)
	r.Finish(t0.Add(time.Second))
	if got := r.Summary[KeySuspicious]; got != 0 {
		t.Fatalf("expected sospechosos 0, got %v", got)
	}
	if r.Findings == nil || len(r.Findings) != 0 {
		t.Fatalf("expected empty findings list, got %#v", r.Findings)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"findings":[]`)) || !bytes.Contains(data, []byte(`"limitations":[]`)) {
		t.Fatalf("expected empty arrays in %s", data)
	}
}

func TestFinishOnceAndClamped(t *testing.T) {
	r := New("x", t0)
	r.Finish(t0.Add(-time.Minute))
	if !r.FinishedAt.Equal(t0) {
		t.Fatalf("expected finish clamped to start, got %v", r.FinishedAt)
	}
	r.Finish(t0.Add(time.Hour))
	if !r.FinishedAt.Equal(t0) {
		t.Fatalf("finish must only be set once, got %v", r.FinishedAt)
	}
	if r.Duration() != 0 {
		t.Fatalf("expected zero duration, got %v", r.Duration())
	}
}

func TestFinishKeepsExplicitSuspiciousCount(t *testing.T) {
	r := sample()
	r.Set(KeySuspicious, 7)
	r.Finish(t0)
	if r.Summary[KeySuspicious] != 7 {
		t.Fatalf("explicit count overwritten: %v", r.Summary[KeySuspicious])
	}

	d := New("busqueda_duplicados", t0)
	d.AddFinding(Item{Title: "Duplicados hash abcdef12", Risk: RiskLow})
	d.Finish(t0)
	if d.Summary[KeySuspicious] != 0 {
		t.Fatalf("low risk findings are not suspicious, got %v", d.Summary[KeySuspicious])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := sample()
	r.Finish(t0.Add(2 * time.Second))

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if back.Name != r.Name {
		t.Fatalf("name mismatch: %q", back.Name)
	}
	if len(back.Summary) != len(r.Summary) {
		t.Fatalf("summary size mismatch: %v vs %v", back.Summary, r.Summary)
	}
	for k, v := range r.Summary {
		if fmt.Sprint(back.Summary[k]) != fmt.Sprint(v) {
			t.Fatalf("summary %s: expected %v, got %v", k, v, back.Summary[k])
		}
	}
	if len(back.Findings) != len(r.Findings) {
		t.Fatalf("expected %d findings, got %d", len(r.Findings), len(back.Findings))
	}
	for i := range r.Findings {
		if back.Findings[i].Title != r.Findings[i].Title || back.Findings[i].Risk != r.Findings[i].Risk {
			t.Fatalf("finding %d mismatch: %+v", i, back.Findings[i])
		}
	}
	if !back.StartedAt.Equal(r.StartedAt) || back.FinishedAt == nil || !back.FinishedAt.Equal(*r.FinishedAt) {
		t.Fatalf("timestamps mismatch: %v %v", back.StartedAt, back.FinishedAt)
	}
	if len(back.Limitations) != 1 || back.Limitations[0] != "No se pudo leer /tmp/locked: permission denied" {
		t.Fatalf("unexpected limitations: %v", back.Limitations)
	}
}

func TestJSONShape(t *testing.T) {
	r := New("x", t0)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"name", "started_at", "finished_at", "summary", "findings", "limitations"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %s in %s", key, data)
		}
	}
	if raw["finished_at"] != nil {
		t.Fatalf("expected null finished_at, got %v", raw["finished_at"])
	}
	if raw["started_at"] != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected started_at %v", raw["started_at"])
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	r := sample()
	r.Finish(t0)
	data, _ := json.Marshal(r)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Name != "escaneo_archivos" || len(back.Findings) != 2 {
		t.Fatalf("unexpected report: %+v", back)
	}

	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestText(t *testing.T) {
	r := sample()
	r.Finish(t0.Add(time.Minute))
	got := Text(r)
	want := strings.Join([]string{
		"Report: escaneo_archivos",
		"Started: 2024-05-01T10:00:00Z",
		"Finished: 2024-05-01T10:01:00Z",
		"Summary:",
		"  - archivos_escaneados: 3",
		"  - sospechosos: 2",
		"Findings:",
		"* Archivo sospechoso: setup.bat (risk: high)",
		"    Recommendation: Enviar a cuarentena",
		"    Recommendation: Eliminar solo tras verificación manual",
		"    firmas: [suspicious-batch-naming]",
		"    ruta: /tmp/setup.bat",
		"* Archivo sospechoso: run.js (risk: medium)",
		"    ruta: /tmp/run.js",
		"Limitations:",
		"  - No se pudo leer /tmp/locked: permission denied",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected text:\n%s\n--- want ---\n%s", got, want)
	}
}

func TestTextIncomplete(t *testing.T) {
	got := Text(New("x", t0))
	if !strings.Contains(got, "Finished: incomplete") {
		t.Fatalf("expected incomplete marker, got %q", got)
	}
	if strings.Contains(got, "Findings:") || strings.Contains(got, "Limitations:") {
		t.Fatalf("empty sections must be omitted: %q", got)
	}
}

func TestAggregator(t *testing.T) {
	files := sample()
	files.Finish(t0)
	procs := New("escaneo_procesos", t0)
	procs.AddLimitation("proceso 42 desaparecido")
	procs.Finish(t0)
	gpu := New("escaneo_gpu", t0)
	gpu.Finish(t0)

	agg := NewAggregator("escaneo_completo", t0)
	agg.Add(files)
	agg.Add(procs)
	agg.Add(gpu)
	agg.Add(nil)
	master := agg.Build(t0.Add(time.Second))

	included, ok := master.Summary[KeyIncluded].([]string)
	if !ok || strings.Join(included, ",") != "escaneo_archivos,escaneo_procesos,escaneo_gpu" {
		t.Fatalf("unexpected included reports: %#v", master.Summary[KeyIncluded])
	}
	if master.Summary[KeyTotalFindings] != 2 {
		t.Fatalf("expected 2 total findings, got %v", master.Summary[KeyTotalFindings])
	}
	if len(master.Findings) != 2 || master.Findings[0].Title != files.Findings[0].Title {
		t.Fatalf("unexpected merged findings: %+v", master.Findings)
	}
	if len(master.Limitations) != 2 || master.Limitations[1] != "proceso 42 desaparecido" {
		t.Fatalf("unexpected merged limitations: %v", master.Limitations)
	}
	if !master.Finished() {
		t.Fatal("expected aggregated report to be finished")
	}
}
