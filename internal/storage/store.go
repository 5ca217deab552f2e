// Package storage keeps recorded runs on disk: one directory per run with
// metadata.json and samples.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
)

var sampleHeader = []string{"t", "position", "velocity", "target", "total_delta", "command", "applied", "enabled", "writes"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Motor      string             `json:"motor"`
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Tick       float64            `json:"tick"`
	Duration   float64            `json:"duration"`
	MaxSpeed   float64            `json:"max_speed"`
	Threshold  float64            `json:"threshold"`
	Step       float64            `json:"step"`
	ClosedLoop bool               `json:"closed_loop"`
	Gains      actuator.Gains     `json:"gains"`
	Samples    int                `json:"samples"`
	Writes     int                `json:"writes"`
	TickErrors int                `json:"tick_errors"`
	Metrics    map[string]float64 `json:"metrics"`
}

// NewRunID returns a unique, time-sortable run ID.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405") + "_" + uuid.New().String()[:8]
}

// Save writes a run and returns its ID.
func (s *Store) Save(name string, cfg *config.Config, result *experiment.Result) (string, error) {
	now := time.Now()
	runID := NewRunID(now)
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating run directory")
	}

	meta := RunMetadata{
		ID:         runID,
		Name:       name,
		Timestamp:  now,
		Motor:      cfg.Name,
		Model:      cfg.Plant.Model,
		Integrator: cfg.Plant.Integrator,
		Tick:       cfg.Tick.Seconds(),
		Duration:   cfg.Duration.Seconds(),
		MaxSpeed:   cfg.MaxSpeed,
		Threshold:  cfg.Threshold,
		Step:       cfg.Step,
		ClosedLoop: cfg.ClosedLoop,
		Gains:      cfg.Gains,
		Samples:    len(result.Records),
		Writes:     result.Writes,
		TickErrors: result.TickErrors,
		Metrics:    result.Metrics,
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSamples(filepath.Join(runDir, samplesFile), result.Records); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v interface{}) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating metadata")
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encoding metadata")
}

func writeSamples(path string, records []experiment.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating samples")
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	w := csv.NewWriter(f)
	if err := w.Write(sampleHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			formatFloat(r.T),
			formatFloat(r.Position),
			formatFloat(r.Velocity),
			formatFloat(r.Target),
			formatFloat(r.TotalDelta),
			formatFloat(r.Command),
			formatFloat(r.Applied),
			strconv.FormatBool(r.Enabled),
			strconv.Itoa(r.Writes),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s metadata", runID)
	}
	return &meta, nil
}

// LoadRecords reads a run's samples back. Rows that do not parse are skipped.
func (s *Store) LoadRecords(runID string) ([]experiment.Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "run %s samples", runID)
	}

	out := make([]experiment.Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) != len(sampleHeader) {
			continue
		}
		rec, ok := parseRow(row)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (experiment.Record, bool) {
	var f [7]float64
	for i := range f {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return experiment.Record{}, false
		}
		f[i] = v
	}
	enabled, err := strconv.ParseBool(row[7])
	if err != nil {
		return experiment.Record{}, false
	}
	writes, err := strconv.Atoi(row[8])
	if err != nil {
		return experiment.Record{}, false
	}
	return experiment.Record{
		T: f[0], Position: f[1], Velocity: f[2], Target: f[3], TotalDelta: f[4],
		Command: f[5], Applied: f[6], Enabled: enabled, Writes: writes,
	}, true
}
