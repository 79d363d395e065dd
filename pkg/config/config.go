// Package config holds the run configuration for the window statistics
// pipeline. Options are populated from CLI flags, optionally overlaid
// from a YAML file, and flow by value into workers; nothing here is
// mutated after Validate.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options is the full recognized configuration surface.
type Options struct {
	ParquetRoot string `yaml:"parquet_root"`
	WindowsFile string `yaml:"windows_file"`
	OutRoot     string `yaml:"outroot"`

	NGPUs    int `yaml:"ngpus"`
	QueueMax int `yaml:"queue_max"`

	SrcCol       string `yaml:"src_col"`
	DstCol       string `yaml:"dst_col"`
	TimestampCol string `yaml:"timestamp_col"`

	DropSelfLoops bool `yaml:"drop_self_loops"`
	SkipExisting  bool `yaml:"skip_existing"`
	MaxTasks      int  `yaml:"max_tasks"`

	ValidationTol  float64 `yaml:"validation_tol"`
	FailFastWindow bool    `yaml:"fail_fast_window"`
	FailFastGlobal bool    `yaml:"fail_fast_global"`

	Variants          string  `yaml:"variants"`
	DiffBin           string  `yaml:"diff_bin"`
	GrowthWindowHours float64 `yaml:"growth_window_hours"`

	ExtraCentrality bool `yaml:"extra_centrality"`
	SaveNodeTables  bool `yaml:"save_node_tables"`

	SpawnIsolation bool   `yaml:"spawn_isolation"`
	Catalog        bool   `yaml:"catalog"`
	Backend        string `yaml:"backend"`
}

// Default returns the option defaults the CLI starts from.
func Default() Options {
	return Options{
		NGPUs:             8,
		QueueMax:          20000,
		SrcCol:            "edgeA",
		DstCol:            "edgeB",
		TimestampCol:      "timestamp",
		ValidationTol:     1e-6,
		Variants:          "base,unweighted,thr2",
		DiffBin:           "10min",
		GrowthWindowHours: 2.0,
		SpawnIsolation:    true,
		Backend:           "cpu",
	}
}

// RegisterFlags binds every option to the given flag set.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.ParquetRoot, "parquet-root", o.ParquetRoot, "Event store root (hive-partitioned parquet)")
	fs.StringVar(&o.WindowsFile, "windows-file", o.WindowsFile, "Window schedule CSV")
	fs.StringVar(&o.OutRoot, "outroot", o.OutRoot, "Output root directory")
	fs.IntVar(&o.NGPUs, "ngpus", o.NGPUs, "Number of device-bound workers")
	fs.IntVar(&o.QueueMax, "queue-max", o.QueueMax, "Bounded task queue capacity")
	fs.StringVar(&o.SrcCol, "src-col", o.SrcCol, "Source column name in the event store")
	fs.StringVar(&o.DstCol, "dst-col", o.DstCol, "Target column name in the event store")
	fs.StringVar(&o.TimestampCol, "timestamp-col", o.TimestampCol, "Timestamp column name in the event store")
	fs.BoolVar(&o.DropSelfLoops, "drop-self-loops", o.DropSelfLoops, "Drop src==dst edges before building graphs")
	fs.BoolVar(&o.SkipExisting, "skip-existing", o.SkipExisting, "Skip windows whose summary.json already exists")
	fs.IntVar(&o.MaxTasks, "max-tasks", o.MaxTasks, "Cap on enqueued windows (0 = unlimited)")
	fs.Float64Var(&o.ValidationTol, "validation-tol", o.ValidationTol, "Relative tolerance for strength/total checks")
	fs.BoolVar(&o.FailFastWindow, "fail-fast-window", o.FailFastWindow, "Abort remaining variants when base validation fails")
	fs.BoolVar(&o.FailFastGlobal, "fail-fast-global", o.FailFastGlobal, "Stop all workers when base validation fails")
	fs.StringVar(&o.Variants, "variants", o.Variants, "Comma-separated variants: base,unweighted,thrK")
	fs.StringVar(&o.DiffBin, "diff-bin", o.DiffBin, "Diffusion time bin, e.g. 1min,5min,10min,1H")
	fs.Float64Var(&o.GrowthWindowHours, "growth-window-hours", o.GrowthWindowHours, "Early growth fit window in hours")
	fs.BoolVar(&o.ExtraCentrality, "extra-centrality", o.ExtraCentrality, "Compute eigenvector/betweenness/closeness (heavy)")
	fs.BoolVar(&o.SaveNodeTables, "save-node-tables", o.SaveNodeTables, "Persist per-node parquet tables")
	fs.BoolVar(&o.SpawnIsolation, "spawn-isolation", o.SpawnIsolation, "Run each window in an isolated child process")
	fs.BoolVar(&o.Catalog, "catalog", o.Catalog, "Record completed windows into <outroot>/catalog.db")
	fs.StringVar(&o.Backend, "backend", o.Backend, "Graph backend: cpu")
}

// LoadYAML overlays values from a YAML file onto the options. Fields
// absent from the file keep their current values.
func (o *Options) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the options a producer run needs.
func (o *Options) Validate() error {
	switch {
	case o.ParquetRoot == "":
		return fmt.Errorf("parquet-root is required")
	case o.WindowsFile == "":
		return fmt.Errorf("windows-file is required")
	case o.OutRoot == "":
		return fmt.Errorf("outroot is required")
	case o.NGPUs < 1:
		return fmt.Errorf("ngpus must be >= 1")
	case o.QueueMax < 1:
		return fmt.Errorf("queue-max must be >= 1")
	case o.MaxTasks < 0:
		return fmt.Errorf("max-tasks must be >= 0")
	case o.ValidationTol <= 0:
		return fmt.Errorf("validation-tol must be > 0")
	case o.GrowthWindowHours <= 0:
		return fmt.Errorf("growth-window-hours must be > 0")
	}
	if _, err := os.Stat(o.ParquetRoot); err != nil {
		return fmt.Errorf("parquet-root: %w", err)
	}
	return nil
}

// VariantList splits the configured variants string, trimming blanks.
func (o *Options) VariantList() []string {
	var out []string
	for _, v := range strings.Split(o.Variants, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
