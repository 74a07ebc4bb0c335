// Package logging provides categorized file-based logging for localchat.
// The TUI owns the terminal, so logs never go to stdout; each category gets
// its own file under <datadir>/logs. When debug is disabled every logger is
// a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a subsystem log file.
type Category string

const (
	CategoryBoot      Category = "boot"      // Bootstrap sequence
	CategoryStore     Category = "store"     // SQLite operations
	CategoryProvision Category = "provision" // Model artifact resolution
	CategoryLLM       Category = "llm"       // Engine lifecycle and generation
	CategoryTurn      Category = "turn"      // Chat turn pipeline
	CategoryUI        Category = "ui"        // TUI events
)

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*zap.SugaredLogger)
	logsDir string
	enabled bool
	level   zapcore.Level
)

// Initialize sets up the logging directory. Call once at startup. When debug
// is false this is a silent no-op and every Get returns a no-op logger.
func Initialize(dir string, debug bool, levelName string) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	if !enabled {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	logsDir = dir

	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = zapcore.InfoLevel
	}
	return nil
}

// Get returns the logger for a category, creating its file on first use.
// Always safe to call; never returns nil.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if !enabled || logsDir == "" {
		mu.RUnlock()
		return zap.NewNop().Sugar()
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	path := filepath.Join(logsDir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zap.NewNop().Sugar()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(f),
		level,
	)
	l := zap.New(core).Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes all open loggers. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
}
