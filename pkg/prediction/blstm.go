package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/telemetry"
)

// RSSI normalization range used at training time.
const (
	rssiMinDBm = -100.0
	rssiMaxDBm = -60.0
)

// gateWeights holds one direction of the recurrent layer. Each W matrix is
// hidden x input, each U matrix hidden x hidden, each bias of length hidden.
type gateWeights struct {
	Wi [][]float64 `json:"wi"`
	Wf [][]float64 `json:"wf"`
	Wo [][]float64 `json:"wo"`
	Wc [][]float64 `json:"wc"`
	Ui [][]float64 `json:"ui"`
	Uf [][]float64 `json:"uf"`
	Uo [][]float64 `json:"uo"`
	Uc [][]float64 `json:"uc"`
	Bi []float64   `json:"bi"`
	Bf []float64   `json:"bf"`
	Bo []float64   `json:"bo"`
	Bc []float64   `json:"bc"`
}

// blstmWeights is the on-disk weight file exported by the offline trainer.
type blstmWeights struct {
	InputSize  int         `json:"input_size"`
	HiddenSize int         `json:"hidden_size"`
	Forward    gateWeights `json:"forward"`
	Backward   gateWeights `json:"backward"`
	// DenseW is output x (2*hidden): rows map the concatenated final hidden
	// states to [normalized RSSI, PDR].
	DenseW [][]float64 `json:"dense_w"`
	DenseB []float64   `json:"dense_b"`
}

// BLSTM runs a bidirectional LSTM forward pass over the client's history
// window. Inference is pure arithmetic: identical history always yields an
// identical forecast.
type BLSTM struct {
	w          blstmWeights
	thresholds config.Thresholds
}

// LoadBLSTM reads and validates a weight file produced by offline training.
func LoadBLSTM(path string, t config.Thresholds) (*BLSTM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights: %w", err)
	}
	var w blstmWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing weights: %w", err)
	}
	if err := w.validate(); err != nil {
		return nil, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return &BLSTM{w: w, thresholds: t}, nil
}

func (w *blstmWeights) validate() error {
	if w.InputSize != 2 {
		return fmt.Errorf("input_size must be 2 (rssi, pdr), got %d", w.InputSize)
	}
	if w.HiddenSize < 1 {
		return fmt.Errorf("hidden_size must be positive, got %d", w.HiddenSize)
	}
	for name, dir := range map[string]*gateWeights{"forward": &w.Forward, "backward": &w.Backward} {
		if err := dir.validate(w.HiddenSize, w.InputSize); err != nil {
			return fmt.Errorf("%s direction: %w", name, err)
		}
	}
	if len(w.DenseW) != 2 || len(w.DenseB) != 2 {
		return fmt.Errorf("dense layer must have 2 outputs, got %dx%d", len(w.DenseW), len(w.DenseB))
	}
	for i, row := range w.DenseW {
		if len(row) != 2*w.HiddenSize {
			return fmt.Errorf("dense row %d has %d columns, want %d", i, len(row), 2*w.HiddenSize)
		}
	}
	return nil
}

func (g *gateWeights) validate(hidden, input int) error {
	check := func(name string, m [][]float64, cols int) error {
		if len(m) != hidden {
			return fmt.Errorf("%s has %d rows, want %d", name, len(m), hidden)
		}
		for i, row := range m {
			if len(row) != cols {
				return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), cols)
			}
		}
		return nil
	}
	for name, m := range map[string][][]float64{"wi": g.Wi, "wf": g.Wf, "wo": g.Wo, "wc": g.Wc} {
		if err := check(name, m, input); err != nil {
			return err
		}
	}
	for name, m := range map[string][][]float64{"ui": g.Ui, "uf": g.Uf, "uo": g.Uo, "uc": g.Uc} {
		if err := check(name, m, hidden); err != nil {
			return err
		}
	}
	for name, b := range map[string][]float64{"bi": g.Bi, "bf": g.Bf, "bo": g.Bo, "bc": g.Bc} {
		if len(b) != hidden {
			return fmt.Errorf("%s has length %d, want %d", name, len(b), hidden)
		}
	}
	return nil
}

func (m *BLSTM) Mode() config.ForecasterMode {
	return config.ModeLearned
}

func (m *BLSTM) Forecast(history []telemetry.Sample) (Prediction, error) {
	if len(history) == 0 {
		return Prediction{}, fmt.Errorf("no samples to forecast from")
	}

	seq := make([][]float64, len(history))
	for i, s := range history {
		seq[i] = []float64{normalizeRSSI(s.RSSIdBm), s.PDR}
	}

	hFwd := m.runDirection(&m.w.Forward, seq, false)
	hBwd := m.runDirection(&m.w.Backward, seq, true)

	concat := append(hFwd, hBwd...)
	out := make([]float64, 2)
	for i := range out {
		v := m.w.DenseB[i]
		for j, h := range concat {
			v += m.w.DenseW[i][j] * h
		}
		out[i] = v
	}

	rssi := denormalizeRSSI(clamp(out[0], 0, 1))
	pdr := clamp(out[1], 0, 1)

	return Prediction{
		RSSIdBm:    rssi,
		PDR:        pdr,
		Confidence: confidence(m.thresholds, rssi, pdr),
	}, nil
}

// runDirection executes one LSTM pass and returns the final hidden state.
func (m *BLSTM) runDirection(g *gateWeights, seq [][]float64, reversed bool) []float64 {
	hidden := m.w.HiddenSize
	h := make([]float64, hidden)
	c := make([]float64, hidden)

	for step := 0; step < len(seq); step++ {
		idx := step
		if reversed {
			idx = len(seq) - 1 - step
		}
		x := seq[idx]

		// The whole state vector from the previous step feeds every gate, so
		// updates go into fresh slices.
		nh := make([]float64, hidden)
		nc := make([]float64, hidden)
		for j := 0; j < hidden; j++ {
			i := sigmoid(dot(g.Wi[j], x) + dot(g.Ui[j], h) + g.Bi[j])
			f := sigmoid(dot(g.Wf[j], x) + dot(g.Uf[j], h) + g.Bf[j])
			o := sigmoid(dot(g.Wo[j], x) + dot(g.Uo[j], h) + g.Bo[j])
			cand := math.Tanh(dot(g.Wc[j], x) + dot(g.Uc[j], h) + g.Bc[j])

			nc[j] = f*c[j] + i*cand
			nh[j] = o * math.Tanh(nc[j])
		}
		h, c = nh, nc
	}
	return h
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normalizeRSSI(rssi float64) float64 {
	return clamp((rssi-rssiMinDBm)/(rssiMaxDBm-rssiMinDBm), 0, 1)
}

func denormalizeRSSI(norm float64) float64 {
	return rssiMinDBm + norm*(rssiMaxDBm-rssiMinDBm)
}
