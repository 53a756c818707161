// Package chaosfeed reads RUN_DIR/chaos.json once per probe cycle and
// additively perturbs rtt/jitter/loss per uplink, for demo/test chaos
// injection (spec.md §4.1, §6).
package chaosfeed

import (
	"encoding/json"
	"os"
)

// Perturbation is the additive injection applied to one uplink's probe
// result before the aggregator sees it.
type Perturbation struct {
	RTTMs      float64 `json:"rtt"`
	JitterMs   float64 `json:"jitter"`
	LossFrac   float64 `json:"loss"`
}

// Reader reads chaos.json from a run directory. A missing file is not an
// error — it simply yields no perturbations, the steady-state case.
type Reader struct {
	path string
}

// NewReader builds a Reader for chaos.json under runDir.
func NewReader(runDir string) *Reader {
	return &Reader{path: runDir + "/chaos.json"}
}

// Read returns the current per-uplink perturbation map, keyed by uplink name.
func (r *Reader) Read() (map[string]Perturbation, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]Perturbation
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply adds the perturbation (if any) for name onto rtt/jitter/loss.
func Apply(perturbations map[string]Perturbation, name string, rttMs, jitterMs, lossFrac float64) (float64, float64, float64) {
	p, ok := perturbations[name]
	if !ok {
		return rttMs, jitterMs, lossFrac
	}
	return rttMs + p.RTTMs, jitterMs + p.JitterMs, lossFrac + p.LossFrac
}
