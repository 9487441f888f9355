package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

// EventColumns is the header of an event CSV file.
var EventColumns = []string{"eventtype", "tick", "timestamp", "taskid", "affected_object", "delay", "task_name"}

// NameColumns is the header of a task name mapping CSV file.
var NameColumns = []string{"taskid", "task_name"}

// CSVEventWriter writes canonical events as CSV rows. The header is written
// before the first row, or on Flush when no row was written.
type CSVEventWriter struct {
	w       *csv.Writer
	closer  io.Closer
	started bool
}

// NewCSVEventWriter writes to w. Close does not close w.
func NewCSVEventWriter(w io.Writer) *CSVEventWriter {
	return &CSVEventWriter{w: csv.NewWriter(w)}
}

// CreateCSVEventFile creates or truncates path.
func CreateCSVEventFile(path string) (*CSVEventWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create events file: %w", err)
	}
	w := NewCSVEventWriter(f)
	w.closer = f
	return w, nil
}

func (c *CSVEventWriter) header() error {
	if c.started {
		return nil
	}
	c.started = true
	return c.w.Write(EventColumns)
}

// Write appends one event row.
func (c *CSVEventWriter) Write(ev protocol.Event) error {
	if err := c.header(); err != nil {
		return err
	}
	return c.w.Write(EncodeEvent(ev))
}

// Flush writes buffered rows to the underlying writer.
func (c *CSVEventWriter) Flush() error {
	if err := c.header(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file opened by CreateCSVEventFile.
func (c *CSVEventWriter) Close() error {
	err := c.Flush()
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
	}
	return err
}

// EncodeEvent renders an event as a row in EventColumns order.
func EncodeEvent(ev protocol.Event) []string {
	return []string{
		ev.Tag,
		strconv.FormatUint(uint64(ev.Tick), 10),
		strconv.FormatUint(uint64(ev.Timestamp), 10),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		strconv.FormatUint(uint64(ev.AffectedObject), 10),
		strconv.FormatUint(uint64(ev.Delay), 10),
		ev.TaskName,
	}
}

// ReadEventsCSV parses an event CSV file with a header row. Columns are
// matched by name and task_name may be absent. Rows that fail to parse are
// skipped and counted.
func ReadEventsCSV(r io.Reader) (events []protocol.Event, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read events header: %w", err)
	}

	cols, err := columnIndex(head, EventColumns[:6])
	if err != nil {
		return nil, 0, err
	}
	nameCol := -1
	for i, h := range head {
		if strings.TrimSpace(h) == "task_name" {
			nameCol = i
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, skipped, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return events, skipped, fmt.Errorf("failed to read events: %w", err)
		}

		ev, ok := decodeEvent(rec, cols, nameCol)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
}

func columnIndex(head, want []string) (map[string]int, error) {
	idx := make(map[string]int, len(head))
	for i, h := range head {
		idx[strings.TrimSpace(h)] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing column %q", w)
		}
	}
	return idx, nil
}

func decodeEvent(rec []string, cols map[string]int, nameCol int) (protocol.Event, bool) {
	var nums [5]uint32
	for i, col := range []string{"tick", "timestamp", "taskid", "affected_object", "delay"} {
		j := cols[col]
		if j >= len(rec) {
			return protocol.Event{}, false
		}
		v, err := strconv.ParseUint(strings.TrimSpace(rec[j]), 10, 32)
		if err != nil {
			return protocol.Event{}, false
		}
		nums[i] = uint32(v)
	}

	tagCol := cols["eventtype"]
	if tagCol >= len(rec) {
		return protocol.Event{}, false
	}

	ev := protocol.Event{
		Tag:            strings.TrimSpace(rec[tagCol]),
		Tick:           nums[0],
		Timestamp:      nums[1],
		TaskID:         nums[2],
		AffectedObject: nums[3],
		Delay:          nums[4],
	}
	if nameCol >= 0 && nameCol < len(rec) {
		ev.TaskName = rec[nameCol]
	}
	return ev, true
}

// CSVNameWriter writes task name rows.
type CSVNameWriter struct {
	w       *csv.Writer
	closer  io.Closer
	started bool
}

// NewCSVNameWriter writes to w. Close does not close w.
func NewCSVNameWriter(w io.Writer) *CSVNameWriter {
	return &CSVNameWriter{w: csv.NewWriter(w)}
}

// CreateCSVNameFile creates or truncates path.
func CreateCSVNameFile(path string) (*CSVNameWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create names file: %w", err)
	}
	w := NewCSVNameWriter(f)
	w.closer = f
	return w, nil
}

func (c *CSVNameWriter) header() error {
	if c.started {
		return nil
	}
	c.started = true
	return c.w.Write(NameColumns)
}

// Write appends an entry. Rows without a numeric id are written as
// registered, split at the first comma.
func (c *CSVNameWriter) Write(e tasknames.Entry) error {
	if err := c.header(); err != nil {
		return err
	}
	if e.Valid {
		return c.w.Write([]string{strconv.FormatUint(uint64(e.TaskID), 10), e.Name})
	}
	id, name, _ := strings.Cut(e.Row, ",")
	return c.w.Write([]string{id, name})
}

// Flush writes buffered rows to the underlying writer.
func (c *CSVNameWriter) Flush() error {
	if err := c.header(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file opened by CreateCSVNameFile.
func (c *CSVNameWriter) Close() error {
	err := c.Flush()
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
	}
	return err
}

// ReadNamesCSV loads a mapping file into a fresh table.
func ReadNamesCSV(r io.Reader) (*tasknames.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	table := tasknames.New()
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return table, nil
		}
		if err != nil {
			return table, fmt.Errorf("failed to read names: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.TrimSpace(rec[0]) == NameColumns[0] {
				continue
			}
		}
		table.Add(strings.Join(rec, ","))
	}
}
