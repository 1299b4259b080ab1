// Command replay inspects a persisted tracker run: it prints a summary
// of the run and its estimate series, and can regenerate the diagnostic
// plots from the stored telemetry.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/depthtrack/internal/db"
	"github.com/banshee-data/depthtrack/internal/monitor"
	"github.com/banshee-data/depthtrack/internal/rigid"
	"github.com/banshee-data/depthtrack/internal/track"
	storage "github.com/banshee-data/depthtrack/internal/track/storage/sqlite"
)

var (
	dbFile  = flag.String("db", "depthtrack.db", "Path to the SQLite database file")
	runID   = flag.String("run", "", "Run ID to inspect (empty = list all runs)")
	plotDir = flag.String("plot-dir", "", "Regenerate diagnostic plots into this directory")
)

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	runs := storage.NewRunStore(database)
	estimates := storage.NewEstimateStore(database)

	if *runID == "" {
		listRuns(runs)
		return
	}

	run, err := runs.GetRun(*runID)
	if err != nil {
		log.Fatalf("failed to load run: %v", err)
	}
	series, err := estimates.ListEstimates(*runID)
	if err != nil {
		log.Fatalf("failed to load estimates: %v", err)
	}

	printSummary(run, series)

	if *plotDir != "" {
		if err := regeneratePlots(series, *plotDir); err != nil {
			log.Fatalf("failed to regenerate plots: %v", err)
		}
		fmt.Printf("plots written to %s\n", *plotDir)
	}
}

func listRuns(runs *storage.RunStore) {
	all, err := runs.ListRuns()
	if err != nil {
		log.Fatalf("failed to list runs: %v", err)
	}
	if len(all) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, r := range all {
		state := "running"
		if r.FinishedNanos != nil {
			state = "finished"
		}
		fmt.Printf("%s  backend=%s bodies=%d particles=[%d..%d] %s\n",
			r.RunID, r.Backend, r.Bodies, r.EvaluationCount, r.MaxSampleCount, state)
	}
}

func printSummary(run *storage.Run, series []storage.StoredEstimate) {
	fmt.Printf("run:        %s\n", run.RunID)
	fmt.Printf("tracker:    %s (backend=%s transition=%s)\n", run.TrackerID, run.Backend, run.Transition)
	fmt.Printf("bodies:     %d\n", run.Bodies)
	fmt.Printf("particles:  [%d..%d] update_rate=%.3f max_kl=%.3f\n",
		run.EvaluationCount, run.MaxSampleCount, run.UpdateRate, run.MaxKLDivergence)
	fmt.Printf("frames:     %d\n", len(series))
	if len(series) == 0 {
		return
	}

	resamples := 0
	minCount, maxCount := series[0].ParticleCount, series[0].ParticleCount
	essSum := 0.0
	for _, e := range series {
		if e.Resampled {
			resamples++
		}
		minCount = min(minCount, e.ParticleCount)
		maxCount = max(maxCount, e.ParticleCount)
		essSum += e.ESS
	}
	fmt.Printf("resamples:  %d\n", resamples)
	fmt.Printf("count span: [%d..%d] mean_ess=%.1f\n", minCount, maxCount, essSum/float64(len(series)))

	last := series[len(series)-1]
	state := rigid.State(last.State)
	if state.Bodies()*rigid.BodyDoF == len(state) {
		for b, pose := range state.Poses() {
			fmt.Printf("body %d:     pos=(%.3f, %.3f, %.3f) rot=(%.3f, %.3f, %.3f)\n",
				b, pose.X, pose.Y, pose.Z, pose.RX, pose.RY, pose.RZ)
		}
	}
}

// regeneratePlots replays the stored series through a StepPlotter so the
// diagnostic plots can be rebuilt without re-running the tracker.
func regeneratePlots(series []storage.StoredEstimate, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	sp := monitor.NewStepPlotter()
	if err := sp.Start(dir); err != nil {
		return err
	}
	for _, e := range series {
		sp.Sample(track.Estimate{
			TimestampNanos: e.TimestampNanos,
			State:          rigid.State(e.State),
			ParticleCount:  e.ParticleCount,
			ESS:            e.ESS,
			KLDivergence:   e.KLDivergence,
			Resampled:      e.Resampled,
		})
	}
	sp.Stop()
	return sp.GeneratePlots()
}
