// Package schedule parses the window schedule CSV consumed by the
// producer. The file carries a header with company,start,end and an
// optional window_id column; timestamps stay as strings until a worker
// parses them so persisted identifiers match the input bytes.
package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// timeLayouts are the datetime formats accepted in schedule rows.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
}

// ParseTime parses a schedule timestamp string in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Stream reads schedule rows one at a time, invoking fn for each window.
// fn returning false stops the scan early without error. Rows with
// missing company/start/end are a schedule format error.
func Stream(path string, fn func(model.Window) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read schedule header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"company", "start", "end"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("schedule header missing %q column", required)
		}
	}
	idCol, hasID := col["window_id"]

	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("schedule line %d: %w", line+1, err)
		}
		line++

		w := model.Window{
			Company: strings.TrimSpace(rec[col["company"]]),
			Start:   strings.TrimSpace(rec[col["start"]]),
			End:     strings.TrimSpace(rec[col["end"]]),
		}
		if hasID && idCol < len(rec) {
			w.ID = strings.TrimSpace(rec[idCol])
		}
		if w.Company == "" || w.Start == "" || w.End == "" {
			return fmt.Errorf("schedule line %d: empty company/start/end", line)
		}
		if _, err := ParseTime(w.Start); err != nil {
			return fmt.Errorf("schedule line %d: %w", line, err)
		}
		if _, err := ParseTime(w.End); err != nil {
			return fmt.Errorf("schedule line %d: %w", line, err)
		}
		if !fn(w) {
			return nil
		}
	}
}

// ReadAll loads every window in the schedule.
func ReadAll(path string) ([]model.Window, error) {
	var out []model.Window
	err := Stream(path, func(w model.Window) bool {
		out = append(out, w)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
