package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type FileState int

const (
	StateDone FileState = iota
	StateBad
)

type Config struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	SettleTime time.Duration
}

// Inbox watches SourceDir and hands out files once they stopped changing
// for SettleTime.
type Inbox struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	lastSeen   map[string]time.Time
	processing map[string]bool
}

func NewInbox(cfg Config, logger *slog.Logger) (*Inbox, error) {
	if cfg.SourceDir == "" {
		return nil, fmt.Errorf("loader source dir is empty")
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Inbox{
		cfg:        cfg,
		logger:     logger,
		lastSeen:   make(map[string]time.Time),
		processing: make(map[string]bool),
	}, nil
}

// Watch sends settled file paths to fileChan until ctx is done. Files already
// in the inbox at start are picked up too.
func (l *Inbox) Watch(ctx context.Context, fileChan chan<- string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(l.cfg.SourceDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.cfg.SourceDir, err)
	}
	l.scan()
	l.logger.Info("loader.watching", "dir", l.cfg.SourceDir, "settle", l.cfg.SettleTime)

	ticker := time.NewTicker(l.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			switch {
			case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
				l.touch(e.Name)
			case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.forget(e.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("loader.watch_error", "error", err)
		case <-ticker.C:
			for _, path := range l.settled(time.Now()) {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (l *Inbox) tick() time.Duration {
	return max(l.cfg.SettleTime/3, 10*time.Millisecond)
}

func (l *Inbox) scan() {
	entries, err := os.ReadDir(l.cfg.SourceDir)
	if err != nil {
		l.logger.Error("loader.scan_failed", "dir", l.cfg.SourceDir, "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			l.touch(filepath.Join(l.cfg.SourceDir, e.Name()))
		}
	}
}

func (l *Inbox) touch(path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.processing[path] {
		return
	}
	if _, ok := l.lastSeen[path]; !ok {
		l.logger.Info("loader.new_file", "path", path)
	}
	l.lastSeen[path] = time.Now()
}

func (l *Inbox) forget(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastSeen, path)
}

// settled marks and returns files unchanged for SettleTime.
func (l *Inbox) settled(now time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for path, seen := range l.lastSeen {
		if l.processing[path] || now.Sub(seen) < l.cfg.SettleTime {
			continue
		}
		l.processing[path] = true
		out = append(out, path)
	}
	return out
}

// Release ends processing of path. With retryAfter > 0 the file stays tracked
// and is handed out again once retryAfter has passed.
func (l *Inbox) Release(path string, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.processing, path)
	if retryAfter > 0 {
		l.lastSeen[path] = time.Now().Add(retryAfter - l.cfg.SettleTime)
		return
	}
	delete(l.lastSeen, path)
}

// MoveToArchive moves filePath into a dated folder of the archive or bad dir
// and returns the new path.
func (l *Inbox) MoveToArchive(filePath string, fileState FileState) (string, error) {
	var state string
	switch fileState {
	case StateBad:
		state = l.cfg.BadDir
	default:
		state = l.cfg.ArchiveDir
	}

	currentDate := time.Now().Format("2006-01-02")
	destDir := filepath.Join(state, currentDate)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(filePath)
		baseName := strings.TrimSuffix(filepath.Base(filePath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	if err := os.Rename(filePath, destPath); err == nil {
		return destPath, nil
	}
	// different filesystems
	if err := copyFile(filePath, destPath); err != nil {
		return "", fmt.Errorf("error moving file to archive: %w", err)
	}
	if err := os.Remove(filePath); err != nil {
		return "", err
	}
	return destPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
