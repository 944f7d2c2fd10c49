package prediction

import (
	"fmt"

	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/telemetry"
)

// Prediction is the forecast link quality for the next monitoring tick.
// It is derived per tick and never persisted.
type Prediction struct {
	RSSIdBm    float64
	PDR        float64
	Confidence float64
}

// Predictor forecasts next-tick link metrics from a client's bounded sample
// history. Implementations must be deterministic for identical history.
type Predictor interface {
	Forecast(history []telemetry.Sample) (Prediction, error)
	Mode() config.ForecasterMode
}

// New builds the predictor selected by the configuration. The persistence
// fallback is an explicit mode, not a degradation path: requesting the
// learned mode with unusable weights is a startup error.
func New(cfg *config.LTEConfig) (Predictor, error) {
	switch cfg.ForecasterMode {
	case config.ModePersistence:
		klog.Infof("Forecaster mode: persistence")
		return NewPersistence(cfg.Thresholds), nil
	case config.ModeLearned:
		model, err := LoadBLSTM(cfg.ModelWeightsPath, cfg.Thresholds)
		if err != nil {
			return nil, fmt.Errorf("loading forecaster weights: %w", err)
		}
		klog.Infof("Forecaster mode: learned (weights from %s)", cfg.ModelWeightsPath)
		return model, nil
	default:
		return nil, fmt.Errorf("unknown forecaster mode %q", cfg.ForecasterMode)
	}
}

// confidence scores a prediction the way the threshold predictor does:
// 1.0 outside the intermediate band, linear interpolation inside it.
func confidence(t config.Thresholds, rssiDBm, pdr float64) float64 {
	if rssiDBm <= t.RSSIBadDBm || pdr <= t.PDRBad {
		return 1.0
	}
	if rssiDBm > t.RSSIGoodDBm && pdr > t.PDRGood {
		return 1.0
	}
	return (scoreRSSI(t, rssiDBm) + scorePDR(t, pdr)) / 2.0
}

func scoreRSSI(t config.Thresholds, rssi float64) float64 {
	if rssi >= t.RSSIGoodDBm {
		return 1.0
	}
	if rssi <= t.RSSIBadDBm {
		return 0.0
	}
	return (rssi - t.RSSIBadDBm) / (t.RSSIGoodDBm - t.RSSIBadDBm)
}

func scorePDR(t config.Thresholds, pdr float64) float64 {
	if pdr >= t.PDRGood {
		return 1.0
	}
	if pdr <= t.PDRBad {
		return 0.0
	}
	return (pdr - t.PDRBad) / (t.PDRGood - t.PDRBad)
}
