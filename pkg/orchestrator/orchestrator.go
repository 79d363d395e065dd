// Package orchestrator streams schedule windows through a bounded task
// queue consumed by one worker per accelerator device. The only shared
// mutable state is the broadcast stop flag; outputs are per-window
// directories so workers never contend on writes.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sergiubuhatel/ra2/pkg/catalog"
	"github.com/sergiubuhatel/ra2/pkg/config"
	"github.com/sergiubuhatel/ra2/pkg/debug"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/schedule"
)

// Flag is the broadcast cancellation signal. Set is idempotent and
// observable by every worker and the producer.
type Flag struct {
	once sync.Once
	ch   chan struct{}
}

// NewFlag returns an unset flag.
func NewFlag() *Flag {
	return &Flag{ch: make(chan struct{})}
}

// Set trips the flag. Safe to call repeatedly from any goroutine.
func (f *Flag) Set() {
	f.once.Do(func() { close(f.ch) })
}

// IsSet reports whether the flag has been tripped.
func (f *Flag) IsSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Done exposes the flag as a channel for select loops.
func (f *Flag) Done() <-chan struct{} {
	return f.ch
}

// Runner executes one window on behalf of a worker. Implementations run
// either in-process or as an isolated child process.
type Runner interface {
	Run(ctx context.Context, w model.Window) model.RunRecord
}

// Orchestrator owns the queue, the workers, the stop flag and the
// optional run catalog.
type Orchestrator struct {
	Cfg       config.Options
	Log       zerolog.Logger
	Stop      *Flag
	NewRunner func(device int, stop *Flag) Runner

	cat *catalog.Catalog
}

// New constructs an orchestrator; newRunner is invoked once per device
// and receives the shared stop flag.
func New(cfg config.Options, log zerolog.Logger, newRunner func(device int, stop *Flag) Runner) *Orchestrator {
	return &Orchestrator{
		Cfg:       cfg,
		Log:       log,
		Stop:      NewFlag(),
		NewRunner: newRunner,
	}
}

// SetCatalog attaches a run catalog; records are best-effort.
func (o *Orchestrator) SetCatalog(c *catalog.Catalog) {
	o.cat = c
}

// Run streams the schedule through the workers and blocks until every
// in-flight window has drained. The returned error covers producer-side
// failures only; per-window errors are reported in-band through the
// window's errors.json.
func (o *Orchestrator) Run(ctx context.Context) error {
	tasks := make(chan model.Window, o.Cfg.QueueMax)

	g, ctx := errgroup.WithContext(ctx)
	for device := 0; device < o.Cfg.NGPUs; device++ {
		runner := o.NewRunner(device, o.Stop)
		device := device
		g.Go(func() error {
			return o.worker(ctx, device, runner, tasks)
		})
	}

	produceErr := o.produce(ctx, tasks)
	close(tasks)

	if err := g.Wait(); err != nil {
		return err
	}
	return produceErr
}

func (o *Orchestrator) produce(ctx context.Context, tasks chan<- model.Window) error {
	count := 0
	err := schedule.Stream(o.Cfg.WindowsFile, func(w model.Window) bool {
		if o.Stop.IsSet() {
			return false
		}
		select {
		case tasks <- w:
		case <-o.Stop.Done():
			return false
		case <-ctx.Done():
			return false
		}
		count++
		if o.Cfg.MaxTasks > 0 && count >= o.Cfg.MaxTasks {
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	o.Log.Info().Int("enqueued", count).Msg("schedule drained")
	return ctx.Err()
}

func (o *Orchestrator) worker(ctx context.Context, device int, runner Runner, tasks <-chan model.Window) error {
	for w := range tasks {
		if o.Stop.IsSet() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		debug.Log("worker %d window %s", device, w.WindowID())
		rec := runner.Run(ctx, w)

		ev := o.Log.Info()
		if rec.Status == "fatal" {
			ev = o.Log.Warn()
		}
		ev.Int("device", device).
			Str("window", rec.WindowID).
			Str("status", rec.Status).
			Int64("events", rec.NEvents).
			Dur("elapsed", rec.Elapsed).
			Msg("window done")

		if rec.StopRequested {
			o.Stop.Set()
		}
		o.record(rec)
	}
	return nil
}

func (o *Orchestrator) record(rec model.RunRecord) {
	if o.cat == nil {
		return
	}
	if err := o.cat.Record(rec); err != nil {
		o.Log.Warn().Err(err).Str("window", rec.WindowID).Msg("catalog record failed")
	}
}
