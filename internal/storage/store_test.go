package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
)

func testResult() *experiment.Result {
	return &experiment.Result{
		Records: []experiment.Record{
			{T: 0.02, Position: 0, Target: 0, Enabled: true},
			{T: 0.04, Position: 0.5, Velocity: 12.25, Target: 20, TotalDelta: 20, Command: 0.7, Applied: 0.69, Enabled: true, Writes: 1},
		},
		Metrics:    map[string]float64{"settling_time": 1.5},
		Writes:     1,
		TickErrors: 0,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	runID, err := st.Save("step", cfg, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Name != "step" || meta.Motor != "Motor" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Gains != cfg.Gains {
		t.Errorf("gains = %+v, want %+v", meta.Gains, cfg.Gains)
	}
	if meta.Metrics["settling_time"] != 1.5 {
		t.Errorf("expected settling_time 1.5, got %f", meta.Metrics["settling_time"])
	}
	if meta.Samples != 2 || meta.Writes != 1 {
		t.Errorf("samples %d writes %d", meta.Samples, meta.Writes)
	}

	records, err := st.LoadRecords(runID)
	if err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1] != testResult().Records[1] {
		t.Errorf("record = %+v, want %+v", records[1], testResult().Records[1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	first, err := st.Save("a", config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second, err := st.Save("b", config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if first == second {
		t.Error("run ids must be unique")
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Name != "a" {
		t.Errorf("runs not oldest first: %s", runs[0].Name)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save("step", config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "samples.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestLoadMissingRun(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); err == nil {
		t.Error("expected error")
	}
	if _, err := st.LoadRecords("nope"); err == nil {
		t.Error("expected error")
	}
}

func TestExport(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	runID, err := st.Save("step", config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := st.Export(runID)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var buf bytes.Buffer
	if err := ExportJSON(&buf, data); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded ExportData
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Run.ID != runID || len(decoded.Records) != 2 {
		t.Errorf("unexpected export %+v", decoded.Run)
	}

	path := filepath.Join(tmpDir, "out.json")
	if err := ExportJSONFile(path, data); err != nil {
		t.Fatalf("export file failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("export file missing or empty: %v", err)
	}
}
