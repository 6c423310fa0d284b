// Package timeslice records durations of named phases to a compact binary
// stream that can be summarized afterwards.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x4c53544a // "JTSL"
	Version uint32 = 1
)

// ErrAlreadyRecording is returned by StartRecording while another
// recording is active.
var ErrAlreadyRecording = errors.New("timeslice: already recording")

type header struct {
	Magic       uint32
	Version     uint32
	KindsLength uint32
}

// Kind identifies a registered phase.
type Kind uint64

// Flags classify a kind.
type Flags uint32

const (
	// FlagBuild marks time spent generating or loading code.
	FlagBuild Flags = 1 << iota
	// FlagNative marks time spent running generated or foreign code.
	FlagNative
)

func (f Flags) String() string {
	var names []string
	if f&FlagBuild != 0 {
		names = append(names, "build")
	}
	if f&FlagNative != 0 {
		names = append(names, "native")
	}
	return strings.Join(names, ",")
}

// KindInfo describes a registered kind.
type KindInfo struct {
	Name  string
	Flags Flags
}

var (
	kindsMu sync.Mutex
	kinds   = make(map[Kind]KindInfo)
)

// RegisterKind adds a phase. Kinds are usually registered from package
// variables.
func RegisterKind(name string, flags Flags) Kind {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	id := Kind(len(kinds) + 1)
	kinds[id] = KindInfo{Name: name, Flags: flags}
	return id
}

type record struct {
	Kind     Kind
	Duration int64
}

var recordSize = binary.Size(record{})

type writer struct {
	w       io.Writer
	records chan record
	done    chan error
}

func (w *writer) run() {
	var buf [4096]byte
	off := 0

	for rec := range w.records {
		if off+recordSize > len(buf) {
			if _, err := w.w.Write(buf[:off]); err != nil {
				w.done <- err
				// Drain so Record never blocks on a dead writer.
				for range w.records {
				}
				return
			}
			off = 0
		}
		binary.LittleEndian.PutUint64(buf[off:], uint64(rec.Kind))
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(rec.Duration))
		off += recordSize
	}

	if off > 0 {
		if _, err := w.w.Write(buf[:off]); err != nil {
			w.done <- err
			return
		}
	}
	w.done <- nil
}

func (w *writer) Close() error {
	if !current.CompareAndSwap(w, nil) {
		return fmt.Errorf("timeslice: already closed")
	}
	close(w.records)
	if err := <-w.done; err != nil {
		return fmt.Errorf("timeslice: write: %w", err)
	}
	return nil
}

var current atomic.Pointer[writer]

// Recording reports whether a recording is active.
func Recording() bool {
	return current.Load() != nil
}

// Record stores one duration for kind. It does nothing unless a recording
// is active.
func Record(kind Kind, d time.Duration) {
	if w := current.Load(); w != nil {
		w.records <- record{Kind: kind, Duration: d.Nanoseconds()}
	}
}

// Recorder measures consecutive phases. It is not safe for concurrent use.
type Recorder struct {
	last time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{last: time.Now()}
}

// Record stores the time since the previous call, or since NewRecorder.
func (r *Recorder) Record(kind Kind) {
	now := time.Now()
	Record(kind, now.Sub(r.last))
	r.last = now
}

// StartRecording writes the kind table to w and routes every Record call
// to it until the returned closer is closed.
func StartRecording(w io.Writer) (io.Closer, error) {
	if Recording() {
		return nil, ErrAlreadyRecording
	}

	kindsMu.Lock()
	table, err := json.Marshal(kinds)
	kindsMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("timeslice: marshal kinds: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, header{
		Magic:       Magic,
		Version:     Version,
		KindsLength: uint32(len(table)),
	}); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := w.Write(table); err != nil {
		return nil, fmt.Errorf("timeslice: write kinds: %w", err)
	}

	wr := &writer{
		w:       w,
		records: make(chan record, 4096),
		done:    make(chan error, 1),
	}
	if !current.CompareAndSwap(nil, wr) {
		return nil, ErrAlreadyRecording
	}
	go wr.run()
	return wr, nil
}

// ReadAllRecords calls fn for every record in a stream written by
// StartRecording.
func ReadAllRecords(r io.Reader, fn func(name string, flags Flags, d time.Duration) error) error {
	buf := bufio.NewReader(r)

	var h header
	if err := binary.Read(buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("timeslice: read header: %w", err)
	}
	if h.Magic != Magic {
		return fmt.Errorf("timeslice: invalid magic 0x%x", h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("timeslice: unsupported version %d", h.Version)
	}

	var table map[Kind]KindInfo
	if err := json.NewDecoder(io.LimitReader(buf, int64(h.KindsLength))).Decode(&table); err != nil {
		return fmt.Errorf("timeslice: read kinds: %w", err)
	}

	for {
		var rec record
		if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("timeslice: read record: %w", err)
		}
		info, ok := table[rec.Kind]
		if !ok {
			return fmt.Errorf("timeslice: unknown kind %d", rec.Kind)
		}
		if err := fn(info.Name, info.Flags, time.Duration(rec.Duration)); err != nil {
			return err
		}
	}
}

// Stat aggregates the records of one kind.
type Stat struct {
	Name  string
	Flags Flags
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average duration.
func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Summarize reads a stream and aggregates it per kind, sorted by name.
func Summarize(r io.Reader) ([]Stat, error) {
	byName := make(map[string]*Stat)
	err := ReadAllRecords(r, func(name string, flags Flags, d time.Duration) error {
		s, ok := byName[name]
		if !ok {
			s = &Stat{Name: name, Flags: flags, Min: d, Max: d}
			byName[name] = s
		}
		s.Count++
		s.Total += d
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Stat, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
