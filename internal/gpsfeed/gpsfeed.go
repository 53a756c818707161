// Package gpsfeed reads RUN_DIR/gps.json at 1Hz (spec.md §4.1, §6). GPS
// ingestion itself is an out-of-scope external collaborator; the engine's
// only contract with it is this file.
package gpsfeed

import (
	"encoding/json"
	"os"

	"pathsteer/internal/model"
)

// Reader reads gps.json from a run directory.
type Reader struct {
	path string
}

// NewReader builds a Reader for gps.json under runDir.
func NewReader(runDir string) *Reader {
	return &Reader{path: runDir + "/gps.json"}
}

type wireGPS struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	SpeedMPH float64 `json:"speed_mph"`
	Heading  float64 `json:"heading"`
	Fix      bool    `json:"fix"`
}

// Read returns the last-published GPS snapshot. A missing file yields a
// zero-value, unfixed snapshot rather than an error.
func (r *Reader) Read() (model.GPSSnapshot, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return model.GPSSnapshot{}, nil
	}
	if err != nil {
		return model.GPSSnapshot{}, err
	}
	var w wireGPS
	if err := json.Unmarshal(data, &w); err != nil {
		return model.GPSSnapshot{}, err
	}
	return model.GPSSnapshot{
		Lat:      w.Lat,
		Lon:      w.Lon,
		SpeedMPH: w.SpeedMPH,
		Heading:  w.Heading,
		Fix:      w.Fix,
	}, nil
}
