// Package metricsexport writes probe/risk sample history to CSV for offline
// analysis, adapted from the teacher's internal/metrics package. This is a
// supplemental diagnostic surface, not excluded by any Non-goal.
package metricsexport

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// Sample is one recorded probe/risk observation for one uplink.
type Sample struct {
	Timestamp   time.Time
	Uplink      string
	Kind        string
	Success     bool
	RTTMs       float64
	LossPercent float64
	RiskNow     float64
}

// WriteCSV writes samples to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []Sample) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"timestamp",
		"uplink",
		"kind",
		"success",
		"rtt_ms",
		"loss_percent",
		"risk_now",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range items {
		record := []string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			s.Uplink,
			s.Kind,
			strconv.FormatBool(s.Success),
			strconv.FormatFloat(s.RTTMs, 'f', 3, 64),
			strconv.FormatFloat(s.LossPercent, 'f', 3, 64),
			strconv.FormatFloat(s.RiskNow, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// ReadCSV parses a CSV previously written by WriteCSV.
func ReadCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]Sample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != 7 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, err
		}
		success, err := strconv.ParseBool(row[3])
		if err != nil {
			return nil, err
		}
		rtt, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, err
		}
		loss, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, err
		}
		riskNow, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, err
		}
		out = append(out, Sample{
			Timestamp:   ts,
			Uplink:      row[1],
			Kind:        row[2],
			Success:     success,
			RTTMs:       rtt,
			LossPercent: loss,
			RiskNow:     riskNow,
		})
	}
	return out, nil
}
