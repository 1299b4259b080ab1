// Command tracker runs the pose tracker against a stream of recorded
// depth frames: it loads the tuning configuration, builds the tracker,
// steps it over every frame, persists per-frame estimates to sqlite, and
// serves the HTTP API while running.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/depthtrack/internal/api"
	"github.com/banshee-data/depthtrack/internal/config"
	"github.com/banshee-data/depthtrack/internal/db"
	"github.com/banshee-data/depthtrack/internal/monitor"
	"github.com/banshee-data/depthtrack/internal/monitoring"
	"github.com/banshee-data/depthtrack/internal/rigid"
	"github.com/banshee-data/depthtrack/internal/track"
	storage "github.com/banshee-data/depthtrack/internal/track/storage/sqlite"
)

var (
	listen        = flag.String("listen", ":8081", "HTTP listen address")
	configPath    = flag.String("config", config.DefaultConfigPath, "Path to the tuning config JSON file")
	framesPath    = flag.String("frames", "", "Path to a JSON-lines file of recorded depth frames (required)")
	dbFile        = flag.String("db", "depthtrack.db", "Path to the SQLite database file")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	plotDir       = flag.String("plot-dir", "", "Directory for diagnostic plots (empty = disabled)")
	initZ         = flag.Float64("init-z", 1.0, "Initial depth (metres) for every tracked body")
	frameRate     = flag.Float64("frame-rate", 30, "Replay frame rate (frames/second)")
)

// recordedFrame is the on-disk shape of one depth frame.
type recordedFrame struct {
	TimestampNanos int64     `json:"timestamp_nanos"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Depth          []float32 `json:"depth"`
}

func main() {
	flag.Parse()

	if *framesPath == "" {
		log.Fatal("missing required -frames argument")
	}

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	cfg := tuning.TrackerConfig()
	cam := tuning.GetCameraData()

	builder := track.NewBuilder(cfg, cam, track.PointFileLoader{})
	tracker, err := builder.Build()
	if err != nil {
		if errors.Is(err, track.ErrBackendUnavailable) {
			log.Fatalf("cannot build tracker: %v (rebuild with -tags gpu or set use_accelerated_backend=false)", err)
		}
		log.Fatalf("cannot build tracker: %v", err)
	}
	defer tracker.Close()

	bodies := len(tracker.SamplingBlocks())
	monitoring.Logf("tracker %s built: backend=%s bodies=%d blocks=%v",
		tracker.TrackerID, tracker.Backend(), bodies, tracker.SamplingBlocks())

	initial := rigid.NewState(bodies)
	for b := 0; b < bodies; b++ {
		initial.SetPoseAt(b, rigid.Pose{Z: *initZ})
	}
	if err := tracker.Init(initial); err != nil {
		log.Fatalf("failed to initialise tracker: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	runs := storage.NewRunStore(database)
	estimates := storage.NewEstimateStore(database)
	telemetry := storage.NewTelemetryStore(database)
	runID, err := runs.CreateRun(tracker, cfg, bodies, time.Now())
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	monitoring.Logf("run %s started", runID)

	plotter := monitor.NewStepPlotter()
	if *plotDir != "" {
		if err := plotter.Start(*plotDir); err != nil {
			log.Fatalf("failed to start plotter: %v", err)
		}
	}

	server := api.NewServer(tracker, runs, estimates, telemetry)
	mux := http.NewServeMux()
	server.Routes(mux)
	go func() {
		monitoring.Logf("api listening on %s", *listen)
		if err := http.ListenAndServe(*listen, mux); err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if err := runFrames(tracker, estimates, telemetry, plotter, runID, stop); err != nil {
		log.Fatalf("tracking run failed: %v", err)
	}

	if err := runs.FinishRun(runID, time.Now()); err != nil {
		monitoring.Logf("failed to finish run: %v", err)
	}
	if *plotDir != "" {
		plotter.Stop()
		if err := plotter.GeneratePlots(); err != nil {
			monitoring.Logf("failed to generate plots: %v", err)
		}
	}

	stats := tracker.Stats()
	monitoring.Logf("run %s complete: steps=%d resamples=%d particles=[%d..%d] mean_ess=%.1f",
		runID, stats.Steps, stats.Resamples, stats.MinParticleCount, stats.PeakParticleCount, stats.MeanESS)
}

// runFrames streams every recorded frame through the tracker at the
// configured rate, stopping early on an interrupt.
func runFrames(tracker *track.Tracker, estimates *storage.EstimateStore, telemetry *storage.TelemetryStore, plotter *monitor.StepPlotter, runID string, stop <-chan os.Signal) error {
	f, err := os.Open(*framesPath)
	if err != nil {
		return fmt.Errorf("open frames file: %w", err)
	}
	defer f.Close()

	interval := time.Duration(float64(time.Second) / *frameRate)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 16<<20), 64<<20) // depth frames are large

	frameIdx := 0
	for scanner.Scan() {
		select {
		case sig := <-stop:
			monitoring.Logf("received %v, stopping after %d frames", sig, frameIdx)
			return nil
		default:
		}

		var rec recordedFrame
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("frame %d: %w", frameIdx, err)
		}
		if len(rec.Depth) != rec.Width*rec.Height {
			return fmt.Errorf("frame %d: depth buffer holds %d values, want %d (%dx%d)",
				frameIdx, len(rec.Depth), rec.Width*rec.Height, rec.Width, rec.Height)
		}
		frame := &track.Frame{
			TimestampNanos: rec.TimestampNanos,
			Width:          rec.Width,
			Height:         rec.Height,
			Depth:          rec.Depth,
		}

		est, err := tracker.Step(frame, time.Now())
		if err != nil {
			return fmt.Errorf("frame %d: %w", frameIdx, err)
		}
		plotter.Sample(est)
		if err := estimates.InsertEstimate(runID, frameIdx, est); err != nil {
			return fmt.Errorf("frame %d: %w", frameIdx, err)
		}
		if err := telemetry.InsertStepTelemetry(runID, frameIdx, est.Blocks); err != nil {
			return fmt.Errorf("frame %d: %w", frameIdx, err)
		}

		frameIdx++
		time.Sleep(interval)
	}
	return scanner.Err()
}
