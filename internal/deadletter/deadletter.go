// Package deadletter appends records that could not be written to a JSON Lines
// file, one object per line, so they can be inspected or replayed later.
package deadletter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is an append-only JSON Lines log of failed records. It satisfies
// batch.DeadLetter.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *zap.Logger
}

// Open creates (or appends to) <dir>/<runID>.jsonl.
func Open(dir, runID string) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("dead letter dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dead letter dir: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl")
	// #nosec G304 -- path is built from configuration and a generated run id.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open dead letter log: %w", err)
	}
	return &Log{path: path, file: f, logger: zap.New(newCore(f))}, nil
}

func newCore(w zapcore.WriteSyncer) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zapcore.InfoLevel)
}

// Path returns the file being written.
func (l *Log) Path() string {
	return l.path
}

// Record appends one failed record.
func (l *Log) Record(label, recordID string, record any, cause error) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("dead letter log %s is closed", l.path)
	}
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	l.logger.Info("record failed",
		zap.String("label", label),
		zap.String("record_id", recordID),
		zap.String("error", errText),
		zap.Any("record", record),
	)
	return nil
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	_ = l.logger.Sync()
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close dead letter log: %w", err)
	}
	return nil
}
