// Package monitor records adaptive-loop time series during a tracking run
// and renders diagnostic plots after it. It is offline tooling for tuning
// the divergence bound and sample counts, not a live visualiser.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/depthtrack/internal/track"
)

// StepSample is one captured filter step.
type StepSample struct {
	FrameIdx      int
	ParticleCount int
	ESS           float64
	KLDivergence  float64
	Resampled     bool
}

// StepPlotter accumulates per-step samples of the adaptive loop.
// Call Sample() once per tracker step, then GeneratePlots() after the run.
type StepPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	frameIdx  int
	samples   []StepSample
}

// NewStepPlotter creates a disabled plotter; Start() enables recording.
func NewStepPlotter() *StepPlotter {
	return &StepPlotter{}
}

// Start initialises the plotter for a new run. outputDir should be a
// timestamped directory (e.g. "plots/run_xyz/20260829_101500").
func (sp *StepPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	sp.outputDir = outputDir
	sp.enabled = true
	sp.frameIdx = 0
	sp.samples = sp.samples[:0]
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (sp *StepPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (sp *StepPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// Sample captures one step estimate. Call once per tracker step.
func (sp *StepPlotter) Sample(est track.Estimate) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.enabled {
		return
	}
	sp.frameIdx++
	sp.samples = append(sp.samples, StepSample{
		FrameIdx:      sp.frameIdx,
		ParticleCount: est.ParticleCount,
		ESS:           est.ESS,
		KLDivergence:  est.KLDivergence,
		Resampled:     est.Resampled,
	})
}

// Samples returns a copy of the captured samples.
func (sp *StepPlotter) Samples() []StepSample {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	out := make([]StepSample, len(sp.samples))
	copy(out, sp.samples)
	return out
}

// GeneratePlots renders the captured series as PNG files in the output
// directory: particle count, effective sample size, and KL divergence
// against frame index.
func (sp *StepPlotter) GeneratePlots() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if len(sp.samples) == 0 {
		return fmt.Errorf("no samples recorded")
	}

	countPts := make(plotter.XYs, 0, len(sp.samples))
	essPts := make(plotter.XYs, 0, len(sp.samples))
	klPts := make(plotter.XYs, 0, len(sp.samples))
	for _, s := range sp.samples {
		countPts = append(countPts, plotter.XY{X: float64(s.FrameIdx), Y: float64(s.ParticleCount)})
		essPts = append(essPts, plotter.XY{X: float64(s.FrameIdx), Y: s.ESS})
		klPts = append(klPts, plotter.XY{X: float64(s.FrameIdx), Y: s.KLDivergence})
	}

	series := []struct {
		title string
		yAxis string
		file  string
		pts   plotter.XYs
	}{
		{"Adaptive particle count", "particles", "particle_count.png", countPts},
		{"Effective sample size", "ESS", "ess.png", essPts},
		{"Weight KL divergence", "KL (nats)", "kl_divergence.png", klPts},
	}

	for _, s := range series {
		p := plot.New()
		p.Title.Text = s.title
		p.X.Label.Text = "frame"
		p.Y.Label.Text = s.yAxis

		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", s.file, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)

		out := filepath.Join(sp.outputDir, s.file)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
			return fmt.Errorf("failed to save %s: %w", out, err)
		}
	}

	return nil
}
