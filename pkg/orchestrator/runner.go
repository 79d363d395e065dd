package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sergiubuhatel/ra2/pkg/analysis"
	"github.com/sergiubuhatel/ra2/pkg/config"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

// InProcessRunner executes windows on the orchestrator's own process.
// Used when spawn isolation is disabled and by tests.
type InProcessRunner struct {
	Engine *analysis.Engine
	Stop   *Flag
}

// Run computes the window directly.
func (r *InProcessRunner) Run(_ context.Context, w model.Window) model.RunRecord {
	return r.Engine.ComputeWindow(w, r.Stop)
}

// SubprocessRunner executes each window in a child process so that a
// crash in graph compute cannot take down the orchestrator or a sibling
// device. The child binds its accelerator through the environment and
// reports its outcome as one JSON record on stdout.
type SubprocessRunner struct {
	Binary string
	Cfg    config.Options
	Device int
}

// Run spawns the child and parses its record. A child that dies without
// reporting yields a fatal record; the orchestrator keeps going.
func (r *SubprocessRunner) Run(ctx context.Context, w model.Window) model.RunRecord {
	started := time.Now()

	payload, err := json.Marshal(w)
	if err != nil {
		return crashRecord(w, started, fmt.Errorf("encode task: %w", err))
	}

	cmd := exec.CommandContext(ctx, r.Binary, r.workerArgs()...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"CUDA_VISIBLE_DEVICES="+strconv.Itoa(r.Device),
		"RA2_DEVICE="+strconv.Itoa(r.Device),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return crashRecord(w, started, fmt.Errorf("worker process: %w; stderr: %s", err, tail(stderr.String(), 512)))
	}

	var rec model.RunRecord
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &rec); err != nil {
		return crashRecord(w, started, fmt.Errorf("decode worker record: %w", err))
	}
	rec.Elapsed = time.Since(started)
	return rec
}

// workerArgs rebuilds the flags a single-window child needs.
func (r *SubprocessRunner) workerArgs() []string {
	cfg := r.Cfg
	args := []string{
		"-run-window",
		"-parquet-root", cfg.ParquetRoot,
		"-outroot", cfg.OutRoot,
		"-src-col", cfg.SrcCol,
		"-dst-col", cfg.DstCol,
		"-timestamp-col", cfg.TimestampCol,
		"-validation-tol", strconv.FormatFloat(cfg.ValidationTol, 'g', -1, 64),
		"-variants", cfg.Variants,
		"-diff-bin", cfg.DiffBin,
		"-growth-window-hours", strconv.FormatFloat(cfg.GrowthWindowHours, 'g', -1, 64),
		"-backend", cfg.Backend,
	}
	bools := []struct {
		name string
		on   bool
	}{
		{"-drop-self-loops", cfg.DropSelfLoops},
		{"-skip-existing", cfg.SkipExisting},
		{"-fail-fast-window", cfg.FailFastWindow},
		{"-fail-fast-global", cfg.FailFastGlobal},
		{"-extra-centrality", cfg.ExtraCentrality},
		{"-save-node-tables", cfg.SaveNodeTables},
	}
	for _, b := range bools {
		if b.on {
			args = append(args, b.name)
		}
	}
	return args
}

func crashRecord(w model.Window, started time.Time, err error) model.RunRecord {
	elapsed := time.Since(started)
	return model.RunRecord{
		Company:    w.Company,
		WindowID:   w.WindowID(),
		Status:     "fatal",
		Fatal:      err.Error(),
		Elapsed:    elapsed,
		ElapsedMS:  elapsed.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
