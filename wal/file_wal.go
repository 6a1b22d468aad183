package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	walFilePerm = 0600
	walDirPerm  = 0700

	maxRecordSize     = 10 * 1024 * 1024 // 10MB max record size
	defaultBufSize    = 64 * 1024        // 64KB writer buffer
	defaultMaxSegSize = 64 * 1024 * 1024 // 64MB segment size before rotation
)

// FileWAL is a file-backed WAL split into fixed-size segments. Each record
// is framed as a big-endian length prefix, the CBOR payload and a CRC32
// checksum, so a torn tail write is detected on replay rather than
// propagated.
type FileWAL struct {
	mu  sync.Mutex
	dir string

	file *os.File
	buf  *bufio.Writer
	enc  *encoder

	started      bool
	segmentIndex int
	segmentSize  int64
	maxSegSize   int64
}

// NewFileWAL creates a file-backed WAL in dir
func NewFileWAL(dir string) (*FileWAL, error) {
	return NewFileWALWithOptions(dir, defaultMaxSegSize)
}

// NewFileWALWithOptions creates a file-backed WAL with a custom maximum
// segment size.
func NewFileWALWithOptions(dir string, maxSegSize int64) (*FileWAL, error) {
	if err := os.MkdirAll(dir, walDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}
	if maxSegSize <= 0 {
		maxSegSize = defaultMaxSegSize
	}
	return &FileWAL{dir: dir, maxSegSize: maxSegSize}, nil
}

// Start opens the newest segment for appending
func (w *FileWAL) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	segments := findSegments(w.dir)
	if len(segments) > 0 {
		w.segmentIndex = segments[len(segments)-1]
	}

	if err := w.openSegment(w.segmentIndex); err != nil {
		return err
	}

	w.started = true
	return nil
}

// Stop flushes, syncs and closes the WAL
func (w *FileWAL) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false

	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// Write appends a record (buffered)
func (w *FileWAL) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(rec, false)
}

// WriteSync appends a record and syncs it to disk
func (w *FileWAL) WriteSync(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(rec, true)
}

// write appends a record, rotating the segment first if it is full.
// Caller must hold the lock.
func (w *FileWAL) write(rec *Record, sync bool) error {
	if !w.started {
		return ErrWALClosed
	}

	if w.segmentSize >= w.maxSegSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate WAL: %w", err)
		}
	}

	n, err := w.enc.Encode(rec)
	if err != nil {
		return err
	}
	w.segmentSize += int64(n)

	if sync {
		return w.flushAndSync()
	}
	return nil
}

// FlushAndSync flushes the buffer and syncs to disk.
// Safe for concurrent use.
func (w *FileWAL) FlushAndSync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrWALClosed
	}
	return w.flushAndSync()
}

// flushAndSync is the internal version that assumes the lock is held
func (w *FileWAL) flushAndSync() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// OpenReader returns a reader over all segments, oldest record first. Any
// pending writes are flushed so the reader observes them.
func (w *FileWAL) OpenReader() (Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		if err := w.buf.Flush(); err != nil {
			return nil, err
		}
	}

	segments := findSegments(w.dir)
	if len(segments) == 0 {
		return &NopReader{}, nil
	}
	return &multiSegmentReader{dir: w.dir, segments: segments, current: -1}, nil
}

// rotate closes the current segment and opens the next one
func (w *FileWAL) rotate() error {
	if err := w.flushAndSync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.segmentIndex++
	return w.openSegment(w.segmentIndex)
}

// openSegment opens a segment file for appending
func (w *FileWAL) openSegment(index int) error {
	path := w.segmentPath(index)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, walFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open WAL segment %d: %w", index, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat WAL segment: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriterSize(file, defaultBufSize)
	w.enc = newEncoder(w.buf)
	w.segmentSize = info.Size()
	return nil
}

// segmentPath returns the file path for a segment index
func (w *FileWAL) segmentPath(index int) string {
	return filepath.Join(w.dir, fmt.Sprintf("wal-%05d", index))
}

// SegmentCount returns the number of segments on disk
func (w *FileWAL) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(findSegments(w.dir))
}

// Ensure FileWAL implements WAL
var _ WAL = (*FileWAL)(nil)

// findSegments lists WAL segment indices in a directory, sorted ascending
func findSegments(dir string) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var segments []int
	for _, entry := range entries {
		var idx int
		if n, _ := fmt.Sscanf(entry.Name(), "wal-%05d", &idx); n == 1 {
			segments = append(segments, idx)
		}
	}
	sort.Ints(segments)
	return segments
}

// OpenDirForReading opens the WAL in dir for reading without a FileWAL
// instance, oldest record first.
func OpenDirForReading(dir string) (Reader, error) {
	segments := findSegments(dir)
	if len(segments) == 0 {
		return nil, ErrWALNotFound
	}
	return &multiSegmentReader{dir: dir, segments: segments, current: -1}, nil
}

// encoder frames records into the WAL
type encoder struct {
	w   io.Writer
	buf []byte
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: w, buf: make([]byte, 4)}
}

// Encode writes one framed record and returns the number of bytes written
func (e *encoder) Encode(rec *Record) (int, error) {
	data, err := rec.Marshal()
	if err != nil {
		return 0, err
	}

	binary.BigEndian.PutUint32(e.buf, uint32(len(data)))
	if _, err := e.w.Write(e.buf); err != nil {
		return 0, err
	}
	if _, err := e.w.Write(data); err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint32(e.buf, crc32.ChecksumIEEE(data))
	if _, err := e.w.Write(e.buf); err != nil {
		return 0, err
	}

	// length prefix + payload + checksum
	return 4 + len(data) + 4, nil
}

// decoder reads framed records back out of the WAL
type decoder struct {
	r   io.Reader
	buf []byte
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: r, buf: make([]byte, 4)}
}

func (d *decoder) Decode() (*Record, error) {
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(d.buf)
	if length > maxRecordSize {
		return nil, ErrWALCorrupted
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		return nil, err
	}
	expected := binary.BigEndian.Uint32(d.buf)
	if actual := crc32.ChecksumIEEE(data); actual != expected {
		return nil, fmt.Errorf("%w: CRC mismatch (expected %08x, got %08x)", ErrWALCorrupted, expected, actual)
	}

	rec := &Record{}
	if err := rec.Unmarshal(data); err != nil {
		return nil, err
	}
	return rec, nil
}

// fileReader reads records from one WAL segment
type fileReader struct {
	file *os.File
	dec  *decoder
}

func (r *fileReader) Read() (*Record, error) {
	return r.dec.Decode()
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

var _ Reader = (*fileReader)(nil)

// multiSegmentReader reads through multiple WAL segments in order
type multiSegmentReader struct {
	dir      string
	segments []int
	current  int
	reader   *fileReader
}

func (r *multiSegmentReader) Read() (*Record, error) {
	for {
		if r.reader == nil {
			r.current++
			if r.current >= len(r.segments) {
				return nil, io.EOF
			}

			path := filepath.Join(r.dir, fmt.Sprintf("wal-%05d", r.segments[r.current]))
			file, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			r.reader = &fileReader{file: file, dec: newDecoder(bufio.NewReader(file))}
		}

		rec, err := r.reader.Read()
		if err == io.EOF {
			r.reader.Close()
			r.reader = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

func (r *multiSegmentReader) Close() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}

var _ Reader = (*multiSegmentReader)(nil)
