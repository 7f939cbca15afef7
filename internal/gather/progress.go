package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	emptyFile     = ".gather-empty"
	completedFile = ".gather-completed"
)

// progress remembers, for the current gathering day, which symbols came back
// without bars and whether the day already finished. A second run on the
// same day is a no-op; a crashed run resumes without asking for the empty
// symbols again.
type progress struct {
	dir string

	mu    sync.Mutex
	empty map[string]struct{}
	file  *os.File
	w     *bufio.Writer
}

// openProgress loads the state kept in dir. State belonging to a day other
// than day is discarded.
func openProgress(dir string, day time.Time) (*progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	p := &progress{dir: dir, empty: make(map[string]struct{})}

	flag := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if last := p.lastCompleted(); last != "" && last != day.Format(time.DateOnly) {
		flag |= os.O_TRUNC
	} else if data, err := os.ReadFile(p.path(emptyFile)); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				p.empty[sym] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(p.path(emptyFile), flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", emptyFile, err)
	}
	p.file = f
	p.w = bufio.NewWriter(f)
	return p, nil
}

func (p *progress) path(name string) string { return filepath.Join(p.dir, name) }

// IsEmpty reports whether symbol already returned no bars today.
func (p *progress) IsEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[symbol]
	return ok
}

// MarkEmpty records symbols that returned no bars.
func (p *progress) MarkEmpty(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := p.empty[sym]; ok {
			continue
		}
		p.empty[sym] = struct{}{}
		if _, err := p.w.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing %s: %w", emptyFile, err)
		}
	}
	return p.w.Flush()
}

// MarkCompleted records day as fully gathered.
func (p *progress) MarkCompleted(day time.Time) error {
	return os.WriteFile(p.path(completedFile), []byte(day.Format(time.DateOnly)), 0o644)
}

// IsCompleted reports whether day was already fully gathered.
func (p *progress) IsCompleted(day time.Time) bool {
	return p.lastCompleted() == day.Format(time.DateOnly)
}

func (p *progress) lastCompleted() string {
	data, err := os.ReadFile(p.path(completedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Close flushes and closes the state file.
func (p *progress) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.w.Flush(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
