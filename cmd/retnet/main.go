// Command retnet computes per-window descriptive statistics of the
// retweet influence network: it streams (company, start, end) windows
// from a schedule CSV through device-bound workers, each producing a
// self-validating summary.json plus edge/node parquet tables under
// <outroot>/company=<C>/<window_id>/.
//
// The same binary serves as the isolated per-window worker: with
// -run-window it reads one JSON task from stdin, computes it, and
// reports a single JSON record on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/sergiubuhatel/ra2/pkg/analysis"
	"github.com/sergiubuhatel/ra2/pkg/catalog"
	"github.com/sergiubuhatel/ra2/pkg/config"
	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/logger"
	"github.com/sergiubuhatel/ra2/pkg/metrics"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/orchestrator"
	"github.com/sergiubuhatel/ra2/pkg/version"
)

func main() {
	// .env is optional; flags and real env always win.
	_ = godotenv.Load()

	opts := config.Default()
	fs := flag.NewFlagSet("retnet", flag.ExitOnError)
	opts.RegisterFlags(fs)
	configFile := fs.String("config", "", "Optional YAML config file overlaying the defaults")
	cpuProfile := fs.String("cpu-profile", "", "Write CPU profile to file")
	versionFlag := fs.Bool("version", false, "Show version")
	runWindow := fs.Bool("run-window", false, "Worker mode: compute one window read as JSON from stdin")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *versionFlag {
		fmt.Printf("retnet %s\n", version.Version)
		return
	}

	if *configFile != "" {
		base := config.Default()
		if err := base.LoadYAML(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		// Re-parse so explicit flags override the file.
		opts = base
		fs2 := flag.NewFlagSet("retnet", flag.ExitOnError)
		opts.RegisterFlags(fs2)
		fs2.String("config", "", "")
		fs2.String("cpu-profile", "", "")
		fs2.Bool("version", false, "")
		fs2.Bool("run-window", false, "")
		if err := fs2.Parse(os.Args[1:]); err != nil {
			os.Exit(2)
		}
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	log := logger.New()

	if *runWindow {
		os.Exit(runWorker(opts, log))
	}
	os.Exit(runProducer(opts, log))
}

// runWorker computes a single window in an isolated process. The device
// was bound by the parent through the environment.
func runWorker(opts config.Options, log zerolog.Logger) int {
	backend, err := graphcap.New(opts.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	device := 0
	if s := os.Getenv("RA2_DEVICE"); s != "" {
		if d, err := strconv.Atoi(s); err == nil {
			device = d
		}
	}
	if err := backend.BindDevice(device); err != nil {
		fmt.Fprintf(os.Stderr, "Error: bind device %d: %v\n", device, err)
		return 1
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read task: %v\n", err)
		return 1
	}
	var w model.Window
	if err := json.Unmarshal(data, &w); err != nil {
		fmt.Fprintf(os.Stderr, "Error: decode task: %v\n", err)
		return 1
	}

	stop := orchestrator.NewFlag()
	engine := analysis.NewEngine(opts, backend, log)
	rec := engine.ComputeWindow(w, stop)
	rec.StopRequested = stop.IsSet()
	logStageTimings(log)

	out, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode record: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// runProducer drives the full schedule through the worker pool.
func runProducer(opts config.Options, log zerolog.Logger) int {
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(opts.OutRoot, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory, err := newRunnerFactory(opts, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	orch := orchestrator.New(opts, log, factory)

	if opts.Catalog {
		cat, err := catalog.Open(filepath.Join(opts.OutRoot, "catalog.db"))
		if err != nil {
			log.Warn().Err(err).Msg("catalog disabled")
		} else {
			defer cat.Close()
			orch.SetCatalog(cat)
		}
	}

	// SIGINT/SIGTERM trip the stop flag: workers drain their in-flight
	// window to a safe write boundary and exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("signal received, draining workers")
		orch.Stop.Set()
	}()

	log.Info().
		Str("version", version.Version).
		Int("workers", opts.NGPUs).
		Bool("spawn_isolation", opts.SpawnIsolation).
		Str("variants", opts.Variants).
		Msg("retnet starting")

	if err := orch.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logStageTimings(log)
	log.Info().Str("outroot", opts.OutRoot).Msg("done")
	return 0
}

// logStageTimings reports the accumulated pipeline stage timings. In
// spawn-isolation mode the stages run in the children, so the producer
// has nothing to report and stays silent.
func logStageTimings(log zerolog.Logger) {
	for _, st := range metrics.AllTimingStats() {
		log.Debug().
			Str("stage", st.Name).
			Int64("count", st.Count).
			Float64("total_ms", st.TotalMs).
			Float64("avg_ms", st.AvgMs).
			Float64("max_ms", st.MaxMs).
			Msg("stage timing")
	}
}

// newRunnerFactory picks the per-device execution mode. Spawn isolation
// re-executes this binary per window; otherwise windows run in-process
// on one engine per worker.
func newRunnerFactory(opts config.Options, log zerolog.Logger) (func(device int, stop *orchestrator.Flag) orchestrator.Runner, error) {
	if opts.SpawnIsolation {
		binary, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		return func(device int, _ *orchestrator.Flag) orchestrator.Runner {
			return &orchestrator.SubprocessRunner{Binary: binary, Cfg: opts, Device: device}
		}, nil
	}

	if _, err := graphcap.New(opts.Backend); err != nil {
		return nil, err
	}
	return func(device int, stop *orchestrator.Flag) orchestrator.Runner {
		backend, _ := graphcap.New(opts.Backend)
		_ = backend.BindDevice(device)
		return &orchestrator.InProcessRunner{
			Engine: analysis.NewEngine(opts, backend, log),
			Stop:   stop,
		}
	}, nil
}
