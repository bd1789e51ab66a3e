package eventlog

import (
	"encoding/binary"
	"os"
	"sync"
	"time"
)

// MaxRecordSize bounds one encoded event. Anything larger is a bug, and the
// Reader uses the same bound to reject corrupt length frames.
const MaxRecordSize = 16 * 1024

// Writer appends length-framed CBOR events to a file. It is safe for
// concurrent use from multiple goroutines.
//
// Diagnostics must never disrupt the bridge, so Record reports nothing;
// the first write error is latched and inspectable through Err, and the
// writer stops touching the file once an error is seen.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	err  error

	// scratch holds the uvarint frame header between records.
	scratch [binary.MaxVarintLen64]byte
}

// NewWriter opens the log file for appending, creating it mode 0600: the
// trace carries client addresses and device serial numbers.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f}, nil
}

// Record appends one event, stamping the timestamp if unset. Each record is
// written as a single frame-plus-payload Write so readers never observe a
// half-framed record from a live file.
func (w *Writer) Record(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil || w.err != nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	raw, err := Encode(event)
	if err != nil {
		w.err = err
		return
	}
	if len(raw) > MaxRecordSize {
		// Drop the oversized record but keep the log usable.
		return
	}

	n := binary.PutUvarint(w.scratch[:], uint64(len(raw)))
	frame := append(w.scratch[:n:n], raw...)
	if _, err := w.file.Write(frame); err != nil {
		w.err = err
	}
}

// Err returns the first error seen since the writer was opened.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the log file. Safe to call more than once; subsequent
// Record calls are silently ignored.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
