package stage

import (
	"math"

	"github.com/isaigordeev/saxsrs/kernel"
	"github.com/isaigordeev/saxsrs/sample"
)

// The six built-in transforms implement the canonical pipeline described
// in SPEC_FULL.md §2: Background -> Cut -> Filter -> FindPeak <->
// ProcessPeak (loop) -> Phase. Each (other than Phase) explicitly
// requests its successor; this — not any scheduler-side loop — is what
// drives the pipeline forward.
//
// FindPeak and ProcessPeak are grounded on
// original_source/src/stage/find_peak.rs and process_peak.rs, simplified
// to a flatten-the-window peak subtraction rather than a parabola/
// Gaussian fit: spec.md §1 scopes stage bodies as opaque pure
// transforms, so the fit quality itself is out of scope — what matters
// here is that ProcessPeak shrinks the peak enough that repeated
// FindPeak/ProcessPeak cycles terminate.

// BackgroundConfig configures the Background stage.
type BackgroundConfig struct {
	// MinFloor is the level the sample's own minimum is shifted to: the
	// baseline subtracted from every point is the minimum minus MinFloor.
	// Results below zero are clamped to zero.
	MinFloor float64
}

// DefaultBackgroundConfig returns the default Background configuration.
func DefaultBackgroundConfig() BackgroundConfig {
	return BackgroundConfig{MinFloor: 0}
}

func backgroundTransform(cfg BackgroundConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		intensity := s.Intensity()
		baseline := intensity[0]
		for _, v := range intensity {
			if v < baseline {
				baseline = v
			}
		}
		baseline -= cfg.MinFloor

		out := make([]float64, len(intensity))
		for i, v := range intensity {
			out[i] = math.Max(v-baseline, 0)
		}

		s = s.WithIntensity(out).AdvanceStage()
		return WithRequests(s, m, Request{StageID: Cut, Metadata: m}), nil
	}
}

// CutConfig configures the Cut stage: how many points to trim from each
// end of every array.
type CutConfig struct {
	TrimLow  int
	TrimHigh int
}

// DefaultCutConfig returns the default Cut configuration (no trimming).
func DefaultCutConfig() CutConfig {
	return CutConfig{TrimLow: 0, TrimHigh: 0}
}

func cutTransform(cfg CutConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		n := s.Len()
		low := cfg.TrimLow
		high := n - cfg.TrimHigh
		if low < 0 {
			low = 0
		}
		if high > n {
			high = n
		}
		if high < low {
			high = low
		}

		q := append([]float64(nil), s.Q()[low:high]...)
		intensity := append([]float64(nil), s.Intensity()[low:high]...)
		errArr := append([]float64(nil), s.IntensityErr()[low:high]...)

		s = s.WithArrays(q, intensity, errArr).AdvanceStage()
		return WithRequests(s, m, Request{StageID: Filter, Metadata: m}), nil
	}
}

// FilterConfig configures the Filter stage: an odd-sized moving-average
// window.
type FilterConfig struct {
	WindowSize int
}

// DefaultFilterConfig returns the default Filter configuration.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{WindowSize: 3}
}

func filterTransform(cfg FilterConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		window := cfg.WindowSize
		if window < 1 {
			window = 1
		}
		if window%2 == 0 {
			window++
		}
		half := window / 2

		intensity := s.Intensity()
		out := make([]float64, len(intensity))
		for i := range intensity {
			lo := i - half
			if lo < 0 {
				lo = 0
			}
			hi := i + half
			if hi >= len(intensity) {
				hi = len(intensity) - 1
			}
			sum := 0.0
			for j := lo; j <= hi; j++ {
				sum += intensity[j]
			}
			out[i] = sum / float64(hi-lo+1)
		}

		s = s.WithIntensity(out).AdvanceStage()
		return WithRequests(s, m, Request{StageID: FindPeak, Metadata: m}), nil
	}
}

// FindPeakConfig configures the FindPeak stage.
type FindPeakConfig struct {
	MinHeight     float64
	MinProminence float64
}

// DefaultFindPeakConfig returns the default FindPeak configuration.
func DefaultFindPeakConfig() FindPeakConfig {
	return FindPeakConfig{MinHeight: 0, MinProminence: 0}
}

func findPeakTransform(cfg FindPeakConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		m = m.Clone()

		peaks, err := kernel.FindPeaks(s.Intensity(), cfg.MinHeight, cfg.MinProminence)
		if err != nil {
			return Result{}, err
		}

		fresh := make(map[int]float64, len(peaks))
		for _, p := range peaks {
			fresh[p.Index] = p.Value
		}
		m.AddUnprocessedPeaks(fresh)

		s = s.AdvanceStage()
		s.Metadata = m

		if _, ok := m.SelectHighestPeak(); ok {
			return WithRequests(s, m, Request{StageID: ProcessPeak, Metadata: m}), nil
		}
		return WithRequests(s, m, Request{StageID: Phase, Metadata: m}), nil
	}
}

// ProcessPeakConfig configures the ProcessPeak stage.
type ProcessPeakConfig struct {
	// WindowRadius is how many points on either side of the peak are
	// flattened when the peak is subtracted.
	WindowRadius int
}

// DefaultProcessPeakConfig returns the default ProcessPeak configuration.
func DefaultProcessPeakConfig() ProcessPeakConfig {
	return ProcessPeakConfig{WindowRadius: 5}
}

func processPeakTransform(cfg ProcessPeakConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		m = m.Clone()

		if m.CurrentPeak == nil {
			s = s.AdvanceStage()
			return Terminal(s, m), nil
		}
		peakIdx := *m.CurrentPeak
		intensity := s.Intensity()
		if peakIdx < 0 || peakIdx >= len(intensity) {
			m.CurrentPeak = nil
			s = s.AdvanceStage()
			return Terminal(s, m), nil
		}

		peakValue := intensity[peakIdx]
		out := append([]float64(nil), intensity...)

		floor := neighborFloor(out, peakIdx, cfg.WindowRadius)
		lo := peakIdx - cfg.WindowRadius
		if lo < 0 {
			lo = 0
		}
		hi := peakIdx + cfg.WindowRadius
		if hi >= len(out) {
			hi = len(out) - 1
		}
		for i := lo; i <= hi; i++ {
			if out[i] > floor {
				out[i] = floor
			}
		}

		m.MarkCurrentProcessed(peakValue)
		s = s.WithIntensity(out).AdvanceStage()
		s.Metadata = m

		if m.HasUnprocessedPeaks() {
			return WithRequests(s, m, Request{StageID: FindPeak, Metadata: m}), nil
		}
		return WithRequests(s, m, Request{StageID: Phase, Metadata: m}), nil
	}
}

// neighborFloor returns the lower of the two values just outside the
// [peakIdx-radius, peakIdx+radius] window, used as the flattened level
// when a peak is subtracted.
func neighborFloor(intensity []float64, peakIdx, radius int) float64 {
	lo := peakIdx - radius - 1
	hi := peakIdx + radius + 1

	var candidates []float64
	if lo >= 0 {
		candidates = append(candidates, intensity[lo])
	}
	if hi < len(intensity) {
		candidates = append(candidates, intensity[hi])
	}
	if len(candidates) == 0 {
		return 0
	}
	floor := candidates[0]
	for _, v := range candidates[1:] {
		if v < floor {
			floor = v
		}
	}
	return floor
}

// PhaseConfig configures the Phase stage.
type PhaseConfig struct {
	// ProminenceRatioThreshold is the processed-peak-count-to-length
	// ratio above which the sample is tagged "crystalline" rather than
	// "amorphous" — a deliberately simple heuristic.
	ProminenceRatioThreshold float64
}

// DefaultPhaseConfig returns the default Phase configuration.
func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{ProminenceRatioThreshold: 0.01}
}

func phaseTransform(cfg PhaseConfig) Transform {
	return func(s sample.Sample, m sample.FlowMetadata) (Result, error) {
		// Phase identification is terminal: it consumes the processed
		// peak bookkeeping built up by FindPeak/ProcessPeak but issues
		// no further requests.
		ratio := 0.0
		if n := s.Len(); n > 0 {
			ratio = float64(m.ProcessedCount()) / float64(n)
		}
		if ratio > cfg.ProminenceRatioThreshold {
			m.Phase = sample.PhaseCrystalline
		} else {
			m.Phase = sample.PhaseAmorphous
		}

		s = s.AdvanceStage()
		return Terminal(s, m), nil
	}
}
