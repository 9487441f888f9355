package storage

import (
	"errors"

	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

// Sink persists the output of a trace session.
type Sink interface {
	WriteEvent(ev protocol.Event) error
	WriteName(e tasknames.Entry) error
	Close() error
}

// CSVSink writes events and names to a pair of CSV writers.
type CSVSink struct {
	Events *CSVEventWriter
	Names  *CSVNameWriter
}

// CreateCSVSink creates the event and name files.
func CreateCSVSink(eventsPath, namesPath string) (*CSVSink, error) {
	events, err := CreateCSVEventFile(eventsPath)
	if err != nil {
		return nil, err
	}
	names, err := CreateCSVNameFile(namesPath)
	if err != nil {
		_ = events.Close()
		return nil, err
	}
	return &CSVSink{Events: events, Names: names}, nil
}

func (s *CSVSink) WriteEvent(ev protocol.Event) error {
	return s.Events.Write(ev)
}

func (s *CSVSink) WriteName(e tasknames.Entry) error {
	return s.Names.Write(e)
}

func (s *CSVSink) Close() error {
	return errors.Join(s.Events.Close(), s.Names.Close())
}

// MultiSink fans writes out to every sink. A failing sink does not stop the
// others; errors are joined.
type MultiSink []Sink

func (m MultiSink) WriteEvent(ev protocol.Event) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteEvent(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) WriteName(e tasknames.Entry) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteName(e))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// WriteNames writes every entry of a table, in registration order.
func WriteNames(s Sink, table *tasknames.Table) error {
	for _, e := range table.Entries() {
		if err := s.WriteName(e); err != nil {
			return err
		}
	}
	return nil
}
