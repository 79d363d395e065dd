// Package export persists per-window results: the three JSON documents
// (summary, errors, validation) and the parquet edge/node tables. All
// writes go through a temp-file + rename so readers never observe a
// partially written file.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// WriteJSONAtomic marshals v (indented, keys sorted) and renames it into
// place. The temp file is removed on any failure.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteSummary writes summary.json. Non-finite metric values become JSON
// null; raw NaN is not representable in JSON.
func WriteSummary(path string, s model.Summary) error {
	return WriteJSONAtomic(path, sanitizeMap(map[string]any(s)))
}

// WriteErrors writes errors.json.
func WriteErrors(path string, errs map[string]string) error {
	if errs == nil {
		errs = map[string]string{}
	}
	return WriteJSONAtomic(path, errs)
}

// WriteValidations writes validation.json.
func WriteValidations(path string, reports []model.ValidationReport) error {
	if reports == nil {
		reports = []model.ValidationReport{}
	}
	cleaned := make([]model.ValidationReport, len(reports))
	for i, r := range reports {
		cleaned[i] = model.ValidationReport{
			Variant: r.Variant,
			Checks:  sanitizeMap(r.Checks),
			OK:      r.OK,
		}
	}
	return WriteJSONAtomic(path, cleaned)
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		return sanitizeValue(float64(t))
	case map[string]any:
		return sanitizeMap(t)
	case map[string]float64:
		out := make(map[string]any, len(t))
		for k, f := range t {
			out[k] = sanitizeValue(f)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}
