// Package appendlog implements the durable, append-only event log (C1):
// JSONL writes with size-triggered gzip rotation and a corrupt-line-tolerant
// reader.
package appendlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/domain"
)

const defaultRetention = 5

// Log is the append-only event store. Writers append against the active
// file without blocking each other; rotate() takes an internal mutex only
// around the file-handle swap, never around the write path itself.
type Log struct {
	dir          string
	maxSizeBytes int64
	retention    int
	log          zerolog.Logger

	mu       sync.Mutex // guards file handle swap during rotation only
	file     *os.File
	filePath string
}

// Config configures a Log.
type Config struct {
	Dir          string
	MaxSizeBytes int64 // rotate once the active file exceeds this size
	Retention    int   // number of rotated .N.gz files to keep
}

// Open opens (creating if absent) the active log file events.jsonl in dir.
func Open(cfg Config, log zerolog.Logger) (*Log, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("appendlog: create dir: %w", err)
	}

	path := filepath.Join(cfg.Dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("appendlog: open %s: %w", path, err)
	}

	return &Log{
		dir:          cfg.Dir,
		maxSizeBytes: cfg.MaxSizeBytes,
		retention:    cfg.Retention,
		log:          log.With().Str("component", "appendlog").Logger(),
		file:         f,
		filePath:     path,
	}, nil
}

// Write appends a single event as one JSONL line.
func (l *Log) Write(evt domain.Event) error {
	return l.WriteBatch([]domain.Event{evt})
}

// WriteBatch marshals each event in turn into its own line buffer and
// issues one Write syscall per line, so concurrent callers under O_APPEND
// never interleave partial records.
func (l *Log) WriteBatch(events []domain.Event) error {
	for _, evt := range events {
		line, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("appendlog: marshal event %s: %w", evt.ID, err)
		}
		line = append(line, '\n')

		l.mu.Lock()
		f := l.file
		l.mu.Unlock()

		if _, err := f.Write(line); err != nil {
			return fmt.Errorf("appendlog: write event %s: %w", evt.ID, err)
		}
	}

	if l.maxSizeBytes > 0 {
		if info, err := l.file.Stat(); err == nil && info.Size() > l.maxSizeBytes {
			if err := l.rotate(); err != nil {
				l.log.Warn().Err(err).Msg("rotation failed, continuing on active file")
			}
		}
	}
	return nil
}

// Sync flushes the active file to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	f := l.file
	l.mu.Unlock()
	return f.Sync()
}

// Close syncs and closes the active file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.file.Sync()
	return l.file.Close()
}

// rotate shifts events.jsonl.N.gz up by one, gzips the active file into
// events.jsonl.1.gz, and opens a fresh active file. Writers proceed against
// the old handle until this call returns, then see the new file on their
// next Write.
func (l *Log) rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("appendlog: close before rotate: %w", err)
	}

	// Shift existing rotated files up by one: .(retention-1).gz is renamed
	// onto .retention.gz, which drops the previous oldest segment.
	for i := l.retention - 1; i >= 1; i-- {
		src := rotatedPath(l.filePath, i)
		dst := rotatedPath(l.filePath, i+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if i+1 > l.retention {
			_ = os.Remove(src)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			l.log.Warn().Err(err).Str("src", src).Str("dst", dst).Msg("rotation shift failed")
		}
	}

	if err := gzipFile(l.filePath, rotatedPath(l.filePath, 1)); err != nil {
		return fmt.Errorf("appendlog: gzip rotation: %w", err)
	}
	if err := os.Remove(l.filePath); err != nil {
		return fmt.Errorf("appendlog: remove rotated active file: %w", err)
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("appendlog: reopen active file: %w", err)
	}
	l.file = f
	return nil
}

func rotatedPath(activePath string, n int) string {
	return fmt.Sprintf("%s.%d.gz", activePath, n)
}

func gzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		_ = gw.Close()
		return err
	}
	return gw.Close()
}

// ReadAll returns every event in file order across the active file and any
// rotated .N.gz segments (oldest first), skipping corrupt lines with a
// logged warning rather than failing the scan. Intended for the ETL pipeline
// and debugging only.
func (l *Log) ReadAll() ([]domain.Event, error) {
	var out []domain.Event

	for i := l.retention; i >= 1; i-- {
		path := rotatedPath(l.filePath, i)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		events, err := l.readGzipSegment(path)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}

	active, err := l.readActiveSegment()
	if err != nil {
		return nil, err
	}
	out = append(out, active...)
	return out, nil
}

func (l *Log) readActiveSegment() ([]domain.Event, error) {
	f, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("appendlog: open active segment: %w", err)
	}
	defer f.Close()
	return l.scanLines(f, l.filePath)
}

func (l *Log) readGzipSegment(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("appendlog: open segment %s: %w", path, err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("appendlog: gzip reader for %s: %w", path, err)
	}
	defer gr.Close()
	return l.scanLines(gr, path)
}

func (l *Log) scanLines(r io.Reader, sourcePath string) ([]domain.Event, error) {
	var out []domain.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt domain.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			l.log.Warn().Err(err).Str("file", sourcePath).Int("line", lineNo).Msg("skipping corrupt event-log line")
			continue
		}
		out = append(out, evt)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("appendlog: scan %s: %w", sourcePath, err)
	}
	return out, nil
}
