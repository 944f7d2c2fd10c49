package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLTEConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LTEConfig)
		valid  bool
	}{
		{"defaults", func(c *LTEConfig) {}, true},
		{"zero tick", func(c *LTEConfig) { c.TickInterval = 0 }, false},
		{"negative ceiling", func(c *LTEConfig) { c.SessionCeiling = -time.Second }, false},
		{"zero flowlet gap", func(c *LTEConfig) { c.FlowletGap = 0 }, false},
		{"window below one", func(c *LTEConfig) { c.HistoryWindow = 0 }, false},
		{"inverted rssi thresholds", func(c *LTEConfig) { c.Thresholds.RSSIGoodDBm = -90 }, false},
		{"inverted pdr thresholds", func(c *LTEConfig) { c.Thresholds.PDRGood = 0.5 }, false},
		{"learned without weights", func(c *LTEConfig) { c.ForecasterMode = ModeLearned }, false},
		{"learned with weights", func(c *LTEConfig) {
			c.ForecasterMode = ModeLearned
			c.ModelWeightsPath = "weights.json"
		}, true},
		{"unknown mode", func(c *LTEConfig) { c.ForecasterMode = "oracle" }, false},
		{"overload threshold above one", func(c *LTEConfig) { c.WiFiOverloadThreshold = 1.5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLTEConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadWiFiFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wifi.yaml")
	data := `
listenAddr: ":9000"
capacityMbps: 50
overloadThreshold: 0.8
maxClients: 5
gateways:
  - name: gw1
    addresses: ["10.0.2.10", "10.0.2.11"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadWiFi(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.CapacityMbps != 50 || cfg.MaxClients != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Gateways) != 1 || len(cfg.Gateways[0].Addresses) != 2 {
		t.Errorf("gateways not parsed: %+v", cfg.Gateways)
	}
}

func TestLoadWiFiRejectsDuplicateAddresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wifi.yaml")
	data := `
capacityMbps: 50
maxClients: 5
gateways:
  - name: gw1
    addresses: ["10.0.2.10"]
  - name: gw2
    addresses: ["10.0.2.10"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadWiFi(path); err == nil {
		t.Fatal("expected duplicate-address error")
	}
}
