package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hetnet-offload/controller/pkg/util"
)

// ForecasterMode selects the prediction backend. The fallback is an
// explicitly chosen mode, never a silent degradation.
type ForecasterMode string

const (
	ModeLearned     ForecasterMode = "learned"
	ModePersistence ForecasterMode = "persistence"
)

// Thresholds holds the quality-classification cut points.
// Good requires both metrics at or above their good bounds; Bad is either
// metric at or below its bad bound.
type Thresholds struct {
	RSSIGoodDBm float64 `yaml:"rssiGoodDbm"`
	RSSIBadDBm  float64 `yaml:"rssiBadDbm"`
	PDRGood     float64 `yaml:"pdrGood"`
	PDRBad      float64 `yaml:"pdrBad"`
}

// DefaultThresholds returns the Table 4/5 cut points from the source paper.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSSIGoodDBm: -75.0,
		RSSIBadDBm:  -87.0,
		PDRGood:     0.85,
		PDRBad:      0.75,
	}
}

func (t Thresholds) Validate() error {
	if t.RSSIGoodDBm <= t.RSSIBadDBm {
		return fmt.Errorf("rssiGoodDbm (%.1f) must be above rssiBadDbm (%.1f)", t.RSSIGoodDBm, t.RSSIBadDBm)
	}
	if t.PDRGood <= t.PDRBad {
		return fmt.Errorf("pdrGood (%.2f) must be above pdrBad (%.2f)", t.PDRGood, t.PDRBad)
	}
	if t.PDRGood > 1.0 || t.PDRBad < 0.0 {
		return fmt.Errorf("pdr thresholds must lie in [0,1], got good=%.2f bad=%.2f", t.PDRGood, t.PDRBad)
	}
	return nil
}

// LTEConfig configures the cellular-side decision controller.
type LTEConfig struct {
	TickInterval       time.Duration  `yaml:"tickInterval"`
	SessionCeiling     time.Duration  `yaml:"sessionCeiling"` // T_c forced-offload ceiling
	Thresholds         Thresholds     `yaml:"thresholds"`
	FlowletGap         time.Duration  `yaml:"flowletGap"`
	ForecasterMode     ForecasterMode `yaml:"forecasterMode"`
	ModelWeightsPath   string         `yaml:"modelWeightsPath"`
	HistoryWindow      int            `yaml:"historyWindow"`
	CoordinatorURL     string         `yaml:"coordinatorUrl"`
	CoordinatorTimeout time.Duration  `yaml:"coordinatorTimeout"`
	// WiFiOverloadThreshold gates offload attempts: when the wireless side
	// reports load at or above it, the client stays on cellular.
	WiFiOverloadThreshold float64       `yaml:"wifiOverloadThreshold"`
	ProbeInterval         time.Duration `yaml:"probeInterval"`
	ListenAddr            string        `yaml:"listenAddr"` // ingest + metrics surface
}

// DefaultLTEConfig returns the configuration used when no file is supplied.
func DefaultLTEConfig() LTEConfig {
	return LTEConfig{
		TickInterval:          time.Second,
		SessionCeiling:        60 * time.Second,
		Thresholds:            DefaultThresholds(),
		FlowletGap:            50 * time.Millisecond,
		ForecasterMode:        ModePersistence,
		HistoryWindow:         30,
		CoordinatorURL:        "http://127.0.0.1:8080",
		CoordinatorTimeout:    2 * time.Second,
		WiFiOverloadThreshold: 0.75,
		ProbeInterval:         10 * time.Second,
		ListenAddr:            ":9090",
	}
}

func (c *LTEConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tickInterval must be positive, got %v", c.TickInterval)
	}
	if c.SessionCeiling <= 0 {
		return fmt.Errorf("sessionCeiling must be positive, got %v", c.SessionCeiling)
	}
	if c.FlowletGap <= 0 {
		return fmt.Errorf("flowletGap must be positive, got %v", c.FlowletGap)
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("historyWindow must be at least 1, got %d", c.HistoryWindow)
	}
	if c.CoordinatorTimeout <= 0 {
		return fmt.Errorf("coordinatorTimeout must be positive, got %v", c.CoordinatorTimeout)
	}
	if c.WiFiOverloadThreshold <= 0 || c.WiFiOverloadThreshold > 1.0 {
		return fmt.Errorf("wifiOverloadThreshold must lie in (0,1], got %.2f", c.WiFiOverloadThreshold)
	}
	switch c.ForecasterMode {
	case ModeLearned:
		if c.ModelWeightsPath == "" {
			return fmt.Errorf("forecasterMode=learned requires modelWeightsPath")
		}
	case ModePersistence:
	default:
		return fmt.Errorf("unknown forecasterMode %q", c.ForecasterMode)
	}
	return c.Thresholds.Validate()
}

// Gateway describes one wireless gateway and the addresses it can lease.
type Gateway struct {
	Name      string   `yaml:"name"`
	Addresses []string `yaml:"addresses"`
}

// WiFiConfig configures the wireless-side resource manager.
type WiFiConfig struct {
	ListenAddr        string    `yaml:"listenAddr"`
	CapacityMbps      float64   `yaml:"capacityMbps"`
	OverloadThreshold float64   `yaml:"overloadThreshold"`
	Gateways          []Gateway `yaml:"gateways"`
	AuthorizedClients []string  `yaml:"authorizedClients"`
	MaxClients        int       `yaml:"maxClients"`
	AdmissionRPS      float64   `yaml:"admissionRps"`
	AdmissionBurst    int       `yaml:"admissionBurst"`
}

// DefaultWiFiConfig returns the configuration used when no file is supplied.
func DefaultWiFiConfig() WiFiConfig {
	return WiFiConfig{
		ListenAddr:        ":8080",
		CapacityMbps:      100.0,
		OverloadThreshold: 0.75,
		MaxClients:        20,
		AdmissionRPS:      50,
		AdmissionBurst:    100,
	}
}

func (c *WiFiConfig) Validate() error {
	if c.CapacityMbps <= 0 {
		return fmt.Errorf("capacityMbps must be positive, got %.1f", c.CapacityMbps)
	}
	if c.OverloadThreshold <= 0 || c.OverloadThreshold > 1.0 {
		return fmt.Errorf("overloadThreshold must lie in (0,1], got %.2f", c.OverloadThreshold)
	}
	if len(c.Gateways) == 0 {
		return fmt.Errorf("at least one gateway must be configured")
	}
	seen := make(map[string]bool)
	for i, gw := range c.Gateways {
		if gw.Name == "" {
			return fmt.Errorf("gateway at index %d has empty name", i)
		}
		if len(gw.Addresses) == 0 {
			return fmt.Errorf("gateway %q has no addresses", gw.Name)
		}
		for _, addr := range gw.Addresses {
			if seen[addr] {
				return fmt.Errorf("address %q appears in more than one gateway pool", addr)
			}
			seen[addr] = true
		}
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("maxClients must be at least 1, got %d", c.MaxClients)
	}
	return nil
}

// LoadLTE reads and validates the cellular-side configuration file.
// A missing path yields the defaults. Environment variables override the
// defaults but not the file.
func LoadLTE(path string) (*LTEConfig, error) {
	cfg := DefaultLTEConfig()
	cfg.CoordinatorURL = util.GetEnvOrDefault("COORDINATOR_URL", cfg.CoordinatorURL)
	cfg.ListenAddr = util.GetEnvOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.TickInterval = util.GetEnvDuration("TICK_INTERVAL", cfg.TickInterval)
	cfg.SessionCeiling = util.GetEnvDuration("SESSION_CEILING", cfg.SessionCeiling)
	cfg.HistoryWindow = util.GetEnvInt("HISTORY_WINDOW", cfg.HistoryWindow)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading lte config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing lte config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating lte config: %w", err)
	}
	return &cfg, nil
}

// LoadWiFi reads and validates the wireless-side configuration file.
func LoadWiFi(path string) (*WiFiConfig, error) {
	cfg := DefaultWiFiConfig()
	cfg.ListenAddr = util.GetEnvOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.CapacityMbps = util.GetEnvFloat("CAPACITY_MBPS", cfg.CapacityMbps)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading wifi config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing wifi config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating wifi config: %w", err)
	}
	return &cfg, nil
}
