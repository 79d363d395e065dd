package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sergiubuhatel/ra2/pkg/config"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/orchestrator"
)

// recordingRunner counts the windows it ran and can trip the stop flag
// after a chosen window.
type recordingRunner struct {
	mu      sync.Mutex
	windows []string
	stop    *orchestrator.Flag
	stopAt  string
	delay   time.Duration
}

func (r *recordingRunner) Run(_ context.Context, w model.Window) model.RunRecord {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.windows = append(r.windows, w.WindowID())
	r.mu.Unlock()
	if r.stopAt != "" && w.WindowID() == r.stopAt && r.stop != nil {
		r.stop.Set()
	}
	return model.RunRecord{
		Company:  w.Company,
		WindowID: w.WindowID(),
		Status:   "written",
	}
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

func writeSchedule(t *testing.T, n int) string {
	t.Helper()
	content := "company,start,end,window_id\n"
	for i := 0; i < n; i++ {
		content += "ACME,2017-06-01,2017-06-02,w" + string(rune('a'+i)) + "\n"
	}
	path := filepath.Join(t.TempDir(), "windows.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, schedulePath string) config.Options {
	cfg := config.Default()
	cfg.WindowsFile = schedulePath
	cfg.ParquetRoot = t.TempDir()
	cfg.OutRoot = t.TempDir()
	cfg.NGPUs = 2
	cfg.QueueMax = 4
	cfg.SpawnIsolation = false
	return cfg
}

func TestRunDrainsSchedule(t *testing.T) {
	cfg := testConfig(t, writeSchedule(t, 6))
	runner := &recordingRunner{}
	o := orchestrator.New(cfg, zerolog.Nop(), func(int, *orchestrator.Flag) orchestrator.Runner {
		return runner
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.count() != 6 {
		t.Errorf("ran %d windows, want 6", runner.count())
	}
}

func TestMaxTasksCapsEnqueue(t *testing.T) {
	cfg := testConfig(t, writeSchedule(t, 10))
	cfg.MaxTasks = 3
	runner := &recordingRunner{}
	o := orchestrator.New(cfg, zerolog.Nop(), func(int, *orchestrator.Flag) orchestrator.Runner {
		return runner
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.count() != 3 {
		t.Errorf("ran %d windows, want 3", runner.count())
	}
}

func TestStopFlagHaltsWorkers(t *testing.T) {
	cfg := testConfig(t, writeSchedule(t, 12))
	cfg.NGPUs = 1
	cfg.FailFastGlobal = true
	runner := &recordingRunner{stopAt: "wa", delay: time.Millisecond}
	o := orchestrator.New(cfg, zerolog.Nop(), func(_ int, stop *orchestrator.Flag) orchestrator.Runner {
		runner.stop = stop
		return runner
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// First window trips the flag; the single worker must not start
	// another one.
	if runner.count() != 1 {
		t.Errorf("ran %d windows after stop, want 1", runner.count())
	}
	if !o.Stop.IsSet() {
		t.Error("stop flag not set")
	}
}

func TestStopRequestedPropagates(t *testing.T) {
	cfg := testConfig(t, writeSchedule(t, 4))
	cfg.NGPUs = 1
	cfg.FailFastGlobal = true
	o := orchestrator.New(cfg, zerolog.Nop(), func(int, *orchestrator.Flag) orchestrator.Runner {
		return runnerFunc(func(w model.Window) model.RunRecord {
			return model.RunRecord{
				WindowID:      w.WindowID(),
				Status:        "written",
				StopRequested: true,
			}
		})
	})
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !o.Stop.IsSet() {
		t.Error("worker stop request did not trip the orchestrator flag")
	}
}

type runnerFunc func(model.Window) model.RunRecord

func (f runnerFunc) Run(_ context.Context, w model.Window) model.RunRecord {
	return f(w)
}

func TestFlagSemantics(t *testing.T) {
	f := orchestrator.NewFlag()
	if f.IsSet() {
		t.Error("fresh flag is set")
	}
	f.Set()
	f.Set() // idempotent
	if !f.IsSet() {
		t.Error("flag not set after Set")
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done channel not closed")
	}
}
