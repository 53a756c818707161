// Package config loads and validates the Edge/Controller YAML configuration
// described in spec.md §6, following the teacher's pattern of pointer
// sub-structs, a single ApplyDefaults pass, and minimal field validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleRateHz      = 10
	DefaultRTTStepThreshold  = 80.0
	DefaultRTTStepWindowMs   = 200
	DefaultProbeMissCount    = 2
	DefaultProbeMissWindowMs = 300
	DefaultRSRPDropDBM       = -120.0
	DefaultSINRDropDB        = -6.0
	DefaultPrerollMs         = 500
	DefaultDupSettleMs       = 50
	DefaultMinHoldSec        = 3
	DefaultCleanExitSec      = 2
	DefaultRiskIntervalMs    = 250
	DefaultStatusIntervalMs  = 100
	DefaultHistorySize       = 100
	DefaultServicePrefix     = "104.204.136.48/28"
	DefaultFlowTableCapacity = 65536
	DefaultFlowTTLSec        = 5
	DefaultRunDir            = "/var/run/pathsteer"
	DefaultLogDir            = "/var/log/pathsteer"
	DefaultModemQueryBin     = "/usr/bin/pathsteer-modem-query"
	DefaultModemPollSec      = 5
	DefaultDishPollSec       = 1
	DefaultProbeBin          = "/usr/bin/pathsteer-probe"
)

// Config is the top-level document; exactly one of Edge/Controller is
// populated per process, mirroring the teacher's Controller/Node split.
type Config struct {
	Edge       *EdgeConfig       `yaml:"edge,omitempty"`
	Controller *ControllerConfig `yaml:"controller,omitempty"`
}

// UplinkConfig describes one bonded WAN uplink.
type UplinkConfig struct {
	Name               string `yaml:"name"`
	Kind               string `yaml:"kind"` // LTE|SAT|FIBER
	Enabled            bool   `yaml:"enabled"`
	Interface          string `yaml:"interface"`
	Namespace          string `yaml:"namespace"`
	EgressVeth         string `yaml:"egress_veth"`
	ServiceGatewayVeth string `yaml:"service_gateway_veth"`
	ServiceGatewayIP   string `yaml:"service_gateway_ip"`
	Identifier         string `yaml:"identifier"`
}

// EdgeConfig is used by the pathsteer-edge process.
type EdgeConfig struct {
	RunDir string `yaml:"run_dir"`
	LogDir string `yaml:"log_dir"`

	SampleRateHz int `yaml:"sample_rate_hz"`

	RTTStepThresholdMs float64 `yaml:"rtt_step_threshold_ms"`
	RTTStepWindowMs    int     `yaml:"rtt_step_window_ms"`
	ProbeMissCount     int     `yaml:"probe_miss_count"`
	ProbeMissWindowMs  int     `yaml:"probe_miss_window_ms"`

	RSRPDropThresholdDBM float64 `yaml:"rsrp_drop_threshold_db"`
	SINRDropThresholdDB  float64 `yaml:"sinr_drop_threshold_db"`

	PrerollMs    int `yaml:"preroll_ms"`
	DupSettleMs  int `yaml:"dup_settle_ms"`
	MinHoldSec   int `yaml:"min_hold_sec"`
	CleanExitSec int `yaml:"clean_exit_sec"`

	RiskIntervalMs   int `yaml:"risk_interval_ms"`
	StatusIntervalMs int `yaml:"status_interval_ms"`
	HistorySize      int `yaml:"history_size"`

	GPSEnabled bool `yaml:"gps_enabled"`

	ServicePrefix    string `yaml:"service_prefix"`
	ServiceNamespace string `yaml:"service_namespace"`

	ControllerAddr string `yaml:"controller_addr"`
	STUNTarget     string `yaml:"stun_reachability_target"`
	ProbeBin       string `yaml:"probe_bin"`

	ModemQueryBin   string `yaml:"modem_query_bin"`
	ModemPollSec    int    `yaml:"modem_poll_sec"`
	DishPollSec     int    `yaml:"dish_poll_sec"`

	ControllerNotifyAddr string `yaml:"controller_notify_addr"`

	Uplinks []UplinkConfig `yaml:"uplinks"`
}

// ControllerConfig is used by the pathsteer-dedupe process.
type ControllerConfig struct {
	Listen            string   `yaml:"listen"`
	DataDir           string   `yaml:"data_dir"`
	FlowTableCapacity int      `yaml:"flow_table_capacity"`
	FlowTTLSec        int      `yaml:"flow_ttl_sec"`
	TunnelInputs      []string `yaml:"tunnel_inputs"`
}

// Load reads and parses a YAML config file, applying defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Edge == nil && cfg.Controller == nil {
		return fmt.Errorf("config must contain edge or controller section")
	}

	if cfg.Edge != nil {
		if len(cfg.Edge.Uplinks) == 0 {
			return fmt.Errorf("edge.uplinks must not be empty")
		}
		seen := make(map[string]bool, len(cfg.Edge.Uplinks))
		for _, u := range cfg.Edge.Uplinks {
			if u.Name == "" {
				return fmt.Errorf("uplink name is required")
			}
			if seen[u.Name] {
				return fmt.Errorf("duplicate uplink name %q", u.Name)
			}
			seen[u.Name] = true
			switch u.Kind {
			case "LTE", "SAT", "FIBER":
			default:
				return fmt.Errorf("uplink %q: invalid kind %q", u.Name, u.Kind)
			}
		}
	}

	if cfg.Controller != nil && cfg.Controller.Listen == "" {
		return fmt.Errorf("controller.listen is required")
	}

	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Edge != nil {
		e := cfg.Edge
		if e.RunDir == "" {
			e.RunDir = DefaultRunDir
		}
		if e.LogDir == "" {
			e.LogDir = DefaultLogDir
		}
		if e.SampleRateHz == 0 {
			e.SampleRateHz = DefaultSampleRateHz
		}
		if e.RTTStepThresholdMs == 0 {
			e.RTTStepThresholdMs = DefaultRTTStepThreshold
		}
		if e.RTTStepWindowMs == 0 {
			e.RTTStepWindowMs = DefaultRTTStepWindowMs
		}
		if e.ProbeMissCount == 0 {
			e.ProbeMissCount = DefaultProbeMissCount
		}
		if e.ProbeMissWindowMs == 0 {
			e.ProbeMissWindowMs = DefaultProbeMissWindowMs
		}
		if e.RSRPDropThresholdDBM == 0 {
			e.RSRPDropThresholdDBM = DefaultRSRPDropDBM
		}
		if e.SINRDropThresholdDB == 0 {
			e.SINRDropThresholdDB = DefaultSINRDropDB
		}
		if e.PrerollMs == 0 {
			e.PrerollMs = DefaultPrerollMs
		}
		if e.DupSettleMs == 0 {
			e.DupSettleMs = DefaultDupSettleMs
		}
		if e.MinHoldSec == 0 {
			e.MinHoldSec = DefaultMinHoldSec
		}
		if e.CleanExitSec == 0 {
			e.CleanExitSec = DefaultCleanExitSec
		}
		if e.RiskIntervalMs == 0 {
			e.RiskIntervalMs = DefaultRiskIntervalMs
		}
		if e.StatusIntervalMs == 0 {
			e.StatusIntervalMs = DefaultStatusIntervalMs
		}
		if e.HistorySize == 0 {
			e.HistorySize = DefaultHistorySize
		}
		if e.ServicePrefix == "" {
			e.ServicePrefix = DefaultServicePrefix
		}
		if e.ModemQueryBin == "" {
			e.ModemQueryBin = DefaultModemQueryBin
		}
		if e.ModemPollSec == 0 {
			e.ModemPollSec = DefaultModemPollSec
		}
		if e.DishPollSec == 0 {
			e.DishPollSec = DefaultDishPollSec
		}
		if e.ProbeBin == "" {
			e.ProbeBin = DefaultProbeBin
		}
		for i := range e.Uplinks {
			if e.Uplinks[i].Kind == "" {
				e.Uplinks[i].Kind = "FIBER"
			}
		}
	}

	if cfg.Controller != nil {
		c := cfg.Controller
		if c.FlowTableCapacity == 0 {
			c.FlowTableCapacity = DefaultFlowTableCapacity
		}
		if c.FlowTTLSec == 0 {
			c.FlowTTLSec = DefaultFlowTTLSec
		}
		if c.DataDir == "" {
			c.DataDir = DefaultRunDir
		}
	}
}
