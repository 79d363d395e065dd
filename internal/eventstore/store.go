// Package eventstore reads retweet events for one analysis window from a
// hive-partitioned parquet tree laid out as
//
//	<root>/company=<C>/year=<Y>/month=<M>/*.parquet
//
// The store resolves the partitions a window intersects, filters rows by
// timestamp, and returns events sorted by time. Missing partitions are
// not errors: a window that touches no files simply yields no events.
package eventstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/sergiubuhatel/ra2/pkg/debug"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

// Store locates and decodes event files. Column names are configurable
// because upstream exports have shipped with several header generations.
type Store struct {
	Root   string
	SrcCol string
	DstCol string
	TsCol  string
}

// NormalizeEnd widens a date-only end bound to the end of that day.
// An end falling exactly on midnight is read as "the whole day", so it
// becomes end + 24h - 1µs; any other end is returned unchanged.
func NormalizeEnd(end time.Time) time.Time {
	if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 && end.Nanosecond() == 0 {
		return end.Add(24*time.Hour - time.Microsecond)
	}
	return end
}

// monthSpan yields the (year, month) pairs from start to end inclusive.
func monthSpan(start, end time.Time) [][2]int {
	var out [][2]int
	y, m := start.Year(), int(start.Month())
	for {
		out = append(out, [2]int{y, m})
		if y == end.Year() && m == int(end.Month()) {
			break
		}
		m++
		if m == 13 {
			m = 1
			y++
		}
	}
	return out
}

// LoadWindow returns all events for company with start <= ts <= end,
// sorted by timestamp. end is used as given; apply NormalizeEnd first
// when the schedule carries date-only bounds.
func (s *Store) LoadWindow(company string, start, end time.Time) ([]model.Event, error) {
	var files []string
	for _, ym := range monthSpan(start, end) {
		dir := filepath.Join(s.Root,
			"company="+company,
			"year="+strconv.Itoa(ym[0]),
			"month="+strconv.Itoa(ym[1]))
		matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)
	debug.Log("window load company=%s files=%d", company, len(files))

	var events []model.Event
	for _, f := range files {
		ev, err := s.readFile(f, start, end)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		events = append(events, ev...)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].TS.Before(events[j].TS) })
	return events, nil
}

const readBatch = 4096

func (s *Store) readFile(path string, start, end time.Time) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, err
	}

	schema := pf.Schema()
	srcCol, ok := schema.Lookup(s.SrcCol)
	if !ok {
		return nil, fmt.Errorf("column %q not in schema", s.SrcCol)
	}
	dstCol, ok := schema.Lookup(s.DstCol)
	if !ok {
		return nil, fmt.Errorf("column %q not in schema", s.DstCol)
	}
	tsCol, ok := schema.Lookup(s.TsCol)
	if !ok {
		return nil, fmt.Errorf("column %q not in schema", s.TsCol)
	}
	tsToTime := timestampDecoder(tsCol.Node.Type().LogicalType())

	var events []model.Event
	buf := make([]parquet.Row, readBatch)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				var ev model.Event
				var tsSeen bool
				for _, v := range row {
					switch v.Column() {
					case srcCol.ColumnIndex:
						ev.Src = valueString(v)
					case dstCol.ColumnIndex:
						ev.Dst = valueString(v)
					case tsCol.ColumnIndex:
						if !v.IsNull() {
							ev.TS = tsToTime(v.Int64())
							tsSeen = true
						}
					}
				}
				if !tsSeen || ev.TS.Before(start) || ev.TS.After(end) {
					continue
				}
				events = append(events, ev)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, err
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// timestampDecoder maps the column's logical time unit to nanoseconds.
// Files without a timestamp annotation are assumed to carry nanosecond
// epoch integers, matching the upstream export.
func timestampDecoder(lt *format.LogicalType) func(int64) time.Time {
	scale := int64(1)
	if lt != nil && lt.Timestamp != nil {
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			scale = int64(time.Millisecond)
		case lt.Timestamp.Unit.Micros != nil:
			scale = int64(time.Microsecond)
		}
	}
	return func(raw int64) time.Time {
		return time.Unix(0, raw*scale).UTC()
	}
}

func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	default:
		return v.String()
	}
}
