package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/posctl/internal/experiment"
)

type ExportData struct {
	Run     RunMetadata         `json:"run"`
	Records []experiment.Record `json:"records"`
}

// Export loads a stored run with its samples.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	records, err := s.LoadRecords(runID)
	if err != nil {
		return nil, err
	}
	return &ExportData{Run: *meta, Records: records}, nil
}

func ExportJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(data), "encoding export")
}

func ExportJSONFile(path string, data *ExportData) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export")
	}
	defer func() { err = multierr.Append(err, file.Close()) }()
	return ExportJSON(file, data)
}
