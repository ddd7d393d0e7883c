// ABOUTME: Section locator over the backing store
// ABOUTME: Scans in fixed chunks and extracts only the requested byte range

package document

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/nainya/sectionquery/pkg/storage"
)

const (
	DefaultChunkSize = 8 << 10
	DefaultProbeSize = 1 << 10
)

// ScanEvent describes one locator call
type ScanEvent struct {
	DocumentID string
	Kind       string
	Scanned    int64 // Bytes fed through the scanner
	Read       int64 // Bytes read from the store, scanned plus extracted
	Found      bool
	Duration   time.Duration
	Err        error
}

// Observer receives an event for every locator call
type Observer func(ScanEvent)

// Locator finds definition sections without parsing the document
type Locator struct {
	store     storage.Store
	chunkSize int
	probeSize int
	observer  Observer

	scans     int64
	bytesRead int64
}

// Option configures a Locator
type Option func(*Locator)

// WithChunkSize sets the scan chunk size
func WithChunkSize(n int) Option {
	return func(l *Locator) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// WithProbeSize sets the bounded probe size
func WithProbeSize(n int) Option {
	return func(l *Locator) {
		if n > 0 {
			l.probeSize = n
		}
	}
}

// WithObserver installs a scan observer
func WithObserver(o Observer) Option {
	return func(l *Locator) {
		l.observer = o
	}
}

// NewLocator creates a locator over store
func NewLocator(store storage.Store, opts ...Option) *Locator {
	l := &Locator{
		store:     store,
		chunkSize: DefaultChunkSize,
		probeSize: DefaultProbeSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scans returns how many boundary scans have run
func (l *Locator) Scans() int64 {
	return atomic.LoadInt64(&l.scans)
}

// BytesRead returns the total bytes read from the store
func (l *Locator) BytesRead() int64 {
	return atomic.LoadInt64(&l.bytesRead)
}

// Locate returns the section for tag. A tag that is not present yields an
// empty section and a nil error; only store failures are errors.
func (l *Locator) Locate(docID, tag string) (*Section, error) {
	start := time.Now()
	ev := ScanEvent{DocumentID: docID, Kind: tag}

	sec, err := l.locate(docID, tag, &ev)

	ev.Duration = time.Since(start)
	ev.Err = err
	ev.Found = sec.Found()
	l.observe(ev)

	return sec, err
}

func (l *Locator) locate(docID, tag string, ev *ScanEvent) (*Section, error) {
	src, err := l.store.Open(docID)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if !IsDefinitionKind(tag) {
		return emptySection(docID, tag), nil
	}

	begin, end := int64(-1), int64(-1)
	var at Position
	sc := newScanner(func(kind string, defStart, prevEnd int64, pos Position) bool {
		if begin < 0 {
			if kind == tag {
				begin, at = defStart, pos
			}
			return true
		}
		if kind != tag {
			end = prevEnd
			return false
		}
		return true
	})

	scanned, err := l.scan(src, sc)
	ev.Scanned, ev.Read = scanned, scanned
	if err != nil {
		return nil, err
	}
	if begin < 0 {
		return emptySection(docID, tag), nil
	}
	if end < 0 {
		end = sc.lastSig
	}
	if end <= begin {
		return emptySection(docID, tag), nil
	}

	content, err := storage.ReadRange(src, begin, end-begin)
	if err != nil {
		return nil, fmt.Errorf("extract %s section of %s: %w", tag, docID, err)
	}
	atomic.AddInt64(&l.bytesRead, end-begin)
	ev.Read += end - begin

	return &Section{
		DocumentID: docID,
		Kind:       tag,
		Content:    string(content),
		Start:      begin,
		End:        end,
		At:         at,
	}, nil
}

// scan feeds the document through sc chunk by chunk until sc stops or EOF
func (l *Locator) scan(src storage.Source, sc *scanner) (int64, error) {
	atomic.AddInt64(&l.scans, 1)

	size := src.Size()
	chunk := int64(l.chunkSize)
	if size < chunk {
		chunk = size
	}
	buf := make([]byte, chunk)

	var off int64
	for off < size && !sc.stopped {
		n := chunk
		if off+n > size {
			n = size - off
		}
		read, err := src.ReadAt(buf[:n], off)
		if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
			atomic.AddInt64(&l.bytesRead, off)
			if errors.Is(err, io.EOF) {
				return off, fmt.Errorf("%w: scan stopped at %d of %d bytes", storage.ErrTruncated, off+int64(read), size)
			}
			return off, fmt.Errorf("scan at %d: %w", off, err)
		}
		sc.feed(buf[:read])
		off += int64(read)
	}
	sc.finish()

	atomic.AddInt64(&l.bytesRead, off)
	return off, nil
}

// Probe reads at most the first probe-size bytes as a structural probe
func (l *Locator) Probe(docID string) (*Section, error) {
	start := time.Now()
	ev := ScanEvent{DocumentID: docID, Kind: KindProbe}

	sec, err := l.probe(docID, &ev)

	ev.Duration = time.Since(start)
	ev.Err = err
	ev.Found = sec.Found()
	l.observe(ev)

	return sec, err
}

func (l *Locator) probe(docID string, ev *ScanEvent) (*Section, error) {
	src, err := l.store.Open(docID)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	n := int64(l.probeSize)
	if src.Size() < n {
		n = src.Size()
	}
	content, err := storage.ReadRange(src, 0, n)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", docID, err)
	}
	atomic.AddInt64(&l.bytesRead, n)
	ev.Read = n

	sec := &Section{DocumentID: docID, Kind: KindProbe, Content: string(content), Start: 0, End: n}
	if n > 0 {
		sec.At = Position{Line: 1, Column: 1}
	}
	return sec, nil
}

// ReadAll reads the entire document, bypassing boundary detection
func (l *Locator) ReadAll(docID string) (string, error) {
	data, err := storage.ReadAll(l.store, docID)
	if err != nil {
		return "", err
	}
	atomic.AddInt64(&l.bytesRead, int64(len(data)))
	return string(data), nil
}

// Definitions lists every top-level definition in document order
func (l *Locator) Definitions(docID string) ([]Definition, error) {
	src, err := l.store.Open(docID)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var defs []Definition
	sc := newScanner(func(kind string, defStart, prevEnd int64, at Position) bool {
		if n := len(defs); n > 0 {
			defs[n-1].End = prevEnd
		}
		defs = append(defs, Definition{Kind: kind, Start: defStart, Line: at.Line})
		return true
	})
	sc.onName = func(name string) {
		if n := len(defs); n > 0 {
			defs[n-1].Name = name
		}
	}

	if _, err := l.scan(src, sc); err != nil {
		return nil, err
	}
	if n := len(defs); n > 0 {
		defs[n-1].End = sc.lastSig
	}
	return defs, nil
}

func (l *Locator) observe(ev ScanEvent) {
	if l.observer != nil {
		l.observer(ev)
	}
}
