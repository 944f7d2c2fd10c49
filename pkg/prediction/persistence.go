package prediction

import (
	"fmt"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/telemetry"
)

// Persistence forecasts by naive persistence: the next tick is expected to
// look like the most recent observation.
type Persistence struct {
	thresholds config.Thresholds
}

func NewPersistence(t config.Thresholds) *Persistence {
	return &Persistence{thresholds: t}
}

func (p *Persistence) Mode() config.ForecasterMode {
	return config.ModePersistence
}

func (p *Persistence) Forecast(history []telemetry.Sample) (Prediction, error) {
	if len(history) == 0 {
		return Prediction{}, fmt.Errorf("no samples to forecast from")
	}
	last := history[len(history)-1]
	return Prediction{
		RSSIdBm:    last.RSSIdBm,
		PDR:        last.PDR,
		Confidence: confidence(p.thresholds, last.RSSIdBm, last.PDR),
	}, nil
}
