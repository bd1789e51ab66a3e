package eventlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrTruncated indicates the file ends mid-record, typically because the
// bridge died while appending. Records before the tear are still returned.
var ErrTruncated = errors.New("event log truncated")

// Filter specifies criteria for selecting events. Empty/nil fields match
// everything for that criterion.
type Filter struct {
	// Kind filters by event kind.
	Kind Kind

	// Protocol filters by decoder name.
	Protocol string

	// TimeStart selects events at or after this time.
	TimeStart *time.Time

	// TimeEnd selects events before this time.
	TimeEnd *time.Time
}

// matches reports whether the event satisfies every criterion.
func (f *Filter) matches(event Event) bool {
	if f.Kind != "" && event.Kind != f.Kind {
		return false
	}
	if f.Protocol != "" && event.Protocol != f.Protocol {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader iterates framed events from a log file. Each record is bounded by
// its uvarint length frame, so a corrupt or torn file fails with a precise
// error instead of cascading decode garbage.
type Reader struct {
	file   *os.File
	br     *bufio.Reader
	filter Filter

	// payload is reused across records.
	payload []byte
}

// NewReader opens a log file for reading all events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a log file, returning only matching events.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:   f,
		br:     bufio.NewReader(f),
		filter: filter,
	}, nil
}

// Next returns the next matching event, io.EOF at a clean end of file, or
// ErrTruncated when the file tears mid-record.
func (r *Reader) Next() (Event, error) {
	for {
		event, err := r.readRecord()
		if err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// readRecord reads one frame and decodes its payload.
func (r *Reader) readRecord() (Event, error) {
	length, err := binary.ReadUvarint(r.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("%w: bad length frame: %v", ErrTruncated, err)
	}
	if length > MaxRecordSize {
		return Event{}, fmt.Errorf("%w: implausible record length %d", ErrTruncated, length)
	}

	if uint64(cap(r.payload)) < length {
		r.payload = make([]byte, length)
	}
	buf := r.payload[:length]
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return Event{}, fmt.Errorf("%w: record cut short: %v", ErrTruncated, err)
	}

	event, err := Decode(buf)
	if err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

// All reads every remaining matching event, stopping silently at a clean
// EOF and returning what was read alongside ErrTruncated at a torn tail.
func (r *Reader) All() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
