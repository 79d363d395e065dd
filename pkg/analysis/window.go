package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sergiubuhatel/ra2/internal/eventstore"
	"github.com/sergiubuhatel/ra2/pkg/config"
	"github.com/sergiubuhatel/ra2/pkg/debug"
	"github.com/sergiubuhatel/ra2/pkg/export"
	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/metrics"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/schedule"
	"github.com/sergiubuhatel/ra2/pkg/stats"
)

// StopFlag is the broadcast cancellation signal shared between the
// producer, the workers and the engine. The engine only sets it when a
// base-variant validation failure escalates to a global fail-fast.
type StopFlag interface {
	IsSet() bool
	Set()
}

// Engine computes one window end to end. It is stateless across windows;
// configuration flows in by value and every output is window-scoped.
type Engine struct {
	Cfg     config.Options
	Store   *eventstore.Store
	Backend graphcap.Backend
	Log     zerolog.Logger
}

// NewEngine wires an engine from run options.
func NewEngine(cfg config.Options, backend graphcap.Backend, log zerolog.Logger) *Engine {
	return &Engine{
		Cfg: cfg,
		Store: &eventstore.Store{
			Root:   cfg.ParquetRoot,
			SrcCol: cfg.SrcCol,
			DstCol: cfg.DstCol,
			TsCol:  cfg.TimestampCol,
		},
		Backend: backend,
		Log:     log,
	}
}

// ComputeWindow runs the full window state machine:
//
//	NEW -> LOADED -> EDGES -> [per variant: METRICS -> VALIDATE] -> WRITTEN
//
// Any stage may short-circuit to WRITTEN with errors.fatal populated;
// the three JSON documents are always persisted. The returned record
// reports the outcome for the orchestrator and the run catalog.
func (e *Engine) ComputeWindow(w model.Window, stop StopFlag) model.RunRecord {
	started := time.Now()
	windowID := w.WindowID()
	outdir := filepath.Join(e.Cfg.OutRoot, "company="+w.Company, windowID)

	rec := model.RunRecord{Company: w.Company, WindowID: windowID, Status: "written"}
	finish := func(status string) model.RunRecord {
		rec.Status = status
		rec.Elapsed = time.Since(started)
		rec.ElapsedMS = rec.Elapsed.Milliseconds()
		rec.FinishedAt = time.Now().UTC()
		debug.LogTiming("window "+windowID, rec.Elapsed)
		return rec
	}

	summaryPath := filepath.Join(outdir, "summary.json")
	if e.Cfg.SkipExisting {
		if _, err := os.Stat(summaryPath); err == nil {
			debug.Log("skip existing window %s", windowID)
			return finish("skipped")
		}
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		rec.Fatal = err.Error()
		e.Log.Error().Err(err).Str("window", windowID).Msg("cannot create output directory")
		return finish("fatal")
	}

	summary := model.Summary{
		"company":             w.Company,
		"window_id":           windowID,
		"start_time":          w.Start,
		"end_time":            w.End,
		"variants":            e.Cfg.Variants,
		"diff_bin":            e.Cfg.DiffBin,
		"growth_window_hours": e.Cfg.GrowthWindowHours,
	}
	errs := map[string]string{}
	var validations []model.ValidationReport

	fatal := e.computeInto(w, outdir, summary, errs, &validations, stop)
	if fatal != nil {
		errs["fatal"] = fatal.Error()
		rec.Fatal = fatal.Error()
		e.Log.Warn().Str("window", windowID).Err(fatal).Msg("window aborted")
	}

	writeDone := metrics.Timer(metrics.ResultWrite)
	if err := export.WriteSummary(summaryPath, summary); err != nil {
		e.Log.Error().Err(err).Str("window", windowID).Msg("summary write failed")
	}
	if err := export.WriteErrors(filepath.Join(outdir, "errors.json"), errs); err != nil {
		e.Log.Error().Err(err).Str("window", windowID).Msg("errors write failed")
	}
	if err := export.WriteValidations(filepath.Join(outdir, "validation.json"), validations); err != nil {
		e.Log.Error().Err(err).Str("window", windowID).Msg("validation write failed")
	}
	writeDone()

	if n, ok := summary["n_retweet_events"].(int64); ok {
		rec.NEvents = n
	}
	if fatal != nil {
		return finish("fatal")
	}
	return finish("written")
}

// computeInto performs the fallible middle of the window. A returned
// error is fatal for the window; per-metric failures land in errs and
// keep the window going.
func (e *Engine) computeInto(w model.Window, outdir string, summary model.Summary,
	errs map[string]string, validations *[]model.ValidationReport, stop StopFlag) error {

	start, err := schedule.ParseTime(w.Start)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	end, err := schedule.ParseTime(w.End)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	end = eventstore.NormalizeEnd(end)

	bin, err := ParseBin(e.Cfg.DiffBin)
	if err != nil {
		return err
	}
	variants, err := ParseVariants(e.Cfg.VariantList())
	if err != nil {
		return err
	}

	loadDone := metrics.Timer(metrics.WindowLoad)
	events, err := e.Store.LoadWindow(w.Company, start, end)
	loadDone()
	if err != nil {
		summary["n_retweet_events"] = int64(0)
		return err
	}
	if len(events) == 0 {
		summary["n_retweet_events"] = int64(0)
		return fmt.Errorf("no events found in window")
	}
	summary["n_retweet_events"] = int64(len(events))

	summary.Merge("", Diffusion(events, bin, e.Cfg.GrowthWindowHours))

	edgeDone := metrics.Timer(metrics.EdgeBuild)
	edgesBase, nSelf := BuildWeightedEdges(events, e.Cfg.DropSelfLoops)
	edgeDone()
	summary["n_self_loops_removed"] = nSelf

	weights := EdgeWeights(edgesBase)
	summary.Merge("", statsAndConc("edge_w", weights))

	// Persist base edges before any downstream metric so they are
	// recoverable even if the variant loop dies.
	if err := export.WriteEdges(filepath.Join(outdir, "weighted_edges.parquet"), edgesBase); err != nil {
		return err
	}

	opts := MetricsOptions{
		ExtraCentrality: e.Cfg.ExtraCentrality,
		SaveNodeTables:  e.Cfg.SaveNodeTables,
	}

	for _, v := range variants {
		if stop != nil && stop.IsSet() {
			break
		}
		debug.Log("window %s variant %s", w.WindowID(), v.Name)

		evar := v.Apply(edgesBase)
		res := VariantMetrics(e.Backend, evar, v.Name, opts, errs)
		summary.Merge(v.Name+"__", res.Metrics)

		if e.Cfg.SaveNodeTables {
			e.writeNodeTables(outdir, v.Name, res, errs)
		}

		ok, rep := ValidateVariant(summary, v.Name, e.Cfg.ValidationTol)
		*validations = append(*validations, rep)

		if v.Name == "base" {
			summary["base_validation_ok"] = ok
			if !ok {
				if e.Cfg.FailFastGlobal {
					errs["fail_fast_global"] = "base validation failed; stopping all workers"
					if stop != nil {
						stop.Set()
					}
				}
				if e.Cfg.FailFastWindow {
					errs["fail_fast_window"] = "base validation failed; stopped remaining variants for this window"
				}
				if e.Cfg.FailFastWindow || e.Cfg.FailFastGlobal {
					break
				}
			}
		}
	}
	return nil
}

func (e *Engine) writeNodeTables(outdir, variant string, res VariantResult, errs map[string]string) {
	pref := variant + "__"
	record := func(tag string, err error) {
		if err != nil {
			errs[pref+tag+"_table"] = err.Error()
		}
	}
	p := func(name string) string {
		return filepath.Join(outdir, variant+"_"+name+".parquet")
	}
	if res.Degrees != nil {
		record("degrees", export.WriteParquet(p("node_degree_unweighted"), res.Degrees))
	}
	if res.Strengths != nil {
		record("strengths", export.WriteParquet(p("node_strengths"), res.Strengths))
	}
	if res.PageRank != nil {
		record("pagerank", export.WriteParquet(p("pagerank"), res.PageRank))
	}
	if res.Cores != nil {
		record("core_number", export.WriteParquet(p("core_number"), res.Cores))
	}
	if res.Triangles != nil {
		record("deg_triangles", export.WriteParquet(p("deg_triangles"), res.Triangles))
	}
	if res.Partitions != nil {
		record("communities_factorized", export.WriteParquet(p("communities_factorized"), res.Partitions))
	}
	if res.Eigenvector != nil {
		record("eigenvector", export.WriteParquet(p("eigenvector"), res.Eigenvector))
	}
	if res.Betweenness != nil {
		record("betweenness", export.WriteParquet(p("betweenness"), res.Betweenness))
	}
	if res.Closeness != nil {
		record("closeness", export.WriteParquet(p("closeness"), res.Closeness))
	}
}

// statsAndConc merges the stats and concentration packs for one vector.
func statsAndConc(prefix string, xs []float64) map[string]float64 {
	out := stats.Pack(prefix, xs)
	mergeInto(out, stats.ConcPack(prefix, xs))
	return out
}
