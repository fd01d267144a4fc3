package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"toolsync.ai/internal/sim/world"
)

const (
	hourLayout = "2006-01-02-15"
	runLayout  = "20060102T150405.000"
)

// RotatingWriter appends JSON lines to zstd files, one file per UTC hour and
// writer run: <dir>/<prefix>-YYYY-MM-DD-HH.<run>.jsonl.zst. The run is the UTC
// time of the first write, so names sort by hour and then by run start.
type RotatingWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	run  string
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func NewRotatingWriter(dir, prefix string) *RotatingWriter {
	return &RotatingWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (w *RotatingWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if w.run == "" {
		w.run = now.Format(runLayout)
	}
	if hour := now.Format(hourLayout); hour != w.hour {
		if err := w.openLocked(hour); err != nil {
			return fmt.Errorf("%s: rotate: %w", w.prefix, err)
		}
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *RotatingWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	// Each open starts a new zstd frame; concatenated frames decode as one stream.
	f, err := os.OpenFile(w.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.hour = f, enc, hour
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *RotatingWriter) closeLocked() error {
	var err error
	if w.buf != nil {
		err = w.buf.Flush()
		w.buf = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.hour = ""
	return err
}

func (w *RotatingWriter) path(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.%s.jsonl.zst", w.prefix, hour, w.run))
}

// TickLogger writes one entry per world tick to <worldDir>/events.
type TickLogger struct{ w *RotatingWriter }

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{w: NewRotatingWriter(filepath.Join(worldDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.w.Write(e) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// AuditLogger writes respawn, ownership and admin records to <worldDir>/audit.
type AuditLogger struct{ w *RotatingWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{w: NewRotatingWriter(filepath.Join(worldDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.w.Write(e) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

// ListFiles returns <prefix>-*.jsonl.zst files in dir, oldest hour first and,
// within an hour, oldest run first.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadTicks decodes every tick entry in a file, calling fn in file order.
// A non-nil error from fn stops the scan and is returned as is.
func ReadTicks(path string, fn func(world.TickLogEntry) error) error {
	return readJSONL(path, fn)
}

// ReadAudits is ReadTicks for audit files.
func ReadAudits(path string, fn func(world.AuditEntry) error) error {
	return readJSONL(path, fn)
}

func readJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
