package ml

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
)

// Drift defaults.
const (
	DefaultDriftWindow     = 200
	DefaultDriftThreshold  = 1.0
	DefaultDriftMinSamples = 30
)

// Baseline is the training-time distribution of one feature.
type Baseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// BaselineFromScaler derives per-feature baselines from the fitted scaler. A minmax
// scaler is treated as uniform over [min, max].
func BaselineFromScaler(order []string, s Scaler) (map[string]Baseline, bool) {
	out := make(map[string]Baseline, len(order))
	switch sc := s.(type) {
	case *StandardScaler:
		for i, name := range order {
			out[name] = Baseline{Mean: sc.Mean[i], StdDev: sc.Scale[i]}
		}
	case *MinMaxScaler:
		for i, name := range order {
			out[name] = Baseline{
				Mean:   (sc.Min[i] + sc.Max[i]) / 2,
				StdDev: (sc.Max[i] - sc.Min[i]) / math.Sqrt(12),
			}
		}
	default:
		return nil, false
	}
	return out, true
}

// DriftMetrics receives the per-feature drift score.
type DriftMetrics interface {
	MLFeatureDriftSet(feature string, score float64)
}

// DriftConfig tunes a DriftMonitor. Zero values take the defaults.
type DriftConfig struct {
	Window     int
	Threshold  float64
	MinSamples int
	Metrics    DriftMetrics
}

// FeatureDrift is the drift state of one feature.
type FeatureDrift struct {
	Feature    string   `json:"feature"`
	Samples    int      `json:"samples"`
	RecentMean float64  `json:"recent_mean"`
	Baseline   Baseline `json:"baseline"`
	Score      float64  `json:"score"`
	Severity   string   `json:"severity"`
	Drifting   bool     `json:"drifting"`
}

// DriftStatus is a snapshot of every monitored feature.
type DriftStatus struct {
	Window    int            `json:"window"`
	Threshold float64        `json:"threshold"`
	Features  []FeatureDrift `json:"features"`
	Drifting  []string       `json:"drifting"`
	CheckedAt time.Time      `json:"checked_at"`
}

// DriftMonitor compares a rolling window of accepted inputs with the training
// distribution. The score of a feature is the shift of its recent mean measured in
// training standard deviations.
type DriftMonitor struct {
	mu         sync.Mutex
	order      []string
	baseline   map[string]Baseline
	window     int
	threshold  float64
	minSamples int
	metrics    DriftMetrics

	recent   map[string][]float64
	next     map[string]int
	drifting map[string]bool
}

// NewDriftMonitor watches the features listed in order.
func NewDriftMonitor(order []string, baseline map[string]Baseline, cfg DriftConfig) *DriftMonitor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDriftWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultDriftThreshold
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultDriftMinSamples
	}
	cfg.MinSamples = min(cfg.MinSamples, cfg.Window)

	d := &DriftMonitor{
		order:      append([]string(nil), order...),
		baseline:   baseline,
		window:     cfg.Window,
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
		metrics:    cfg.Metrics,
		recent:     make(map[string][]float64, len(order)),
		next:       make(map[string]int, len(order)),
		drifting:   make(map[string]bool, len(order)),
	}
	for _, name := range order {
		d.recent[name] = make([]float64, 0, cfg.Window)
	}
	return d
}

// Observe records one accepted input. Names outside the monitored set are ignored.
func (d *DriftMonitor) Observe(values map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range d.order {
		v, ok := values[name]
		if !ok {
			continue
		}
		buf := d.recent[name]
		if len(buf) < d.window {
			d.recent[name] = append(buf, v)
		} else {
			buf[d.next[name]] = v
			d.next[name] = (d.next[name] + 1) % d.window
		}

		fd := d.featureLocked(name)
		if d.metrics != nil && fd.Samples >= d.minSamples {
			d.metrics.MLFeatureDriftSet(name, fd.Score)
		}
		if fd.Drifting != d.drifting[name] {
			d.drifting[name] = fd.Drifting
			if fd.Drifting {
				log.Warn().
					Str("feature", name).
					Float64("score", fd.Score).
					Float64("recent_mean", fd.RecentMean).
					Float64("baseline_mean", fd.Baseline.Mean).
					Msg("input drift detected")
			} else {
				log.Info().Str("feature", name).Float64("score", fd.Score).Msg("input drift cleared")
			}
		}
	}
}

// Status returns the current drift state in feature order.
func (d *DriftMonitor) Status() DriftStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DriftStatus{
		Window:    d.window,
		Threshold: d.threshold,
		Features:  make([]FeatureDrift, 0, len(d.order)),
		Drifting:  []string{},
		CheckedAt: time.Now(),
	}
	for _, name := range d.order {
		fd := d.featureLocked(name)
		st.Features = append(st.Features, fd)
		if fd.Drifting {
			st.Drifting = append(st.Drifting, name)
		}
	}
	return st
}

// Reset drops all recent samples and keeps the baseline.
func (d *DriftMonitor) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.order {
		d.recent[name] = d.recent[name][:0]
		d.next[name] = 0
		d.drifting[name] = false
	}
}

func (d *DriftMonitor) featureLocked(name string) FeatureDrift {
	base := d.baseline[name]
	fd := FeatureDrift{
		Feature:  name,
		Samples:  len(d.recent[name]),
		Baseline: base,
		Severity: "none",
	}
	if fd.Samples < d.minSamples {
		fd.Severity = "insufficient_data"
		return fd
	}

	mean, err := stats.Mean(d.recent[name])
	if err != nil {
		return fd
	}
	fd.RecentMean = round2(mean)
	if base.StdDev > 0 {
		fd.Score = round2(math.Abs(mean-base.Mean) / base.StdDev)
	}

	switch {
	case fd.Score >= 2*d.threshold:
		fd.Severity = "high"
		fd.Drifting = true
	case fd.Score >= d.threshold:
		fd.Severity = "medium"
		fd.Drifting = true
	case fd.Score >= d.threshold/2:
		fd.Severity = "low"
	}
	return fd
}
