package client

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kvchat/internal/config"
	"kvchat/internal/utils"
)

// Logging owns the sinks behind a logger so they can be closed on exit.
type Logging struct {
	Logger *zap.Logger
	Remote *utils.RemoteLogger
	file   *os.File
}

// NewLogging builds the logger described by cfg. The remote TCP sink and the
// log file are used when configured; fallback, if not nil, is added as well.
// With no sink at all the logger discards everything.
func NewLogging(cfg config.LogConfig, fallback io.Writer) (*Logging, error) {
	l := &Logging{}
	var writers []io.Writer
	if cfg.Port > 0 {
		rl, err := utils.NewRemoteLogger(cfg.Port)
		if err != nil {
			return nil, err
		}
		l.Remote = rl
		writers = append(writers, rl)
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			_ = l.Close()
			return nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		l.file = f
		writers = append(writers, f)
	}
	if fallback != nil {
		writers = append(writers, fallback)
	}
	logger, err := utils.NewLogger(cfg.Level, writers...)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	l.Logger = logger
	return l, nil
}

func (l *Logging) Close() error {
	var err error
	if l.Logger != nil {
		// syncing a terminal or socket may fail harmlessly
		_ = l.Logger.Sync()
	}
	if l.Remote != nil {
		err = multierr.Append(err, l.Remote.Close())
	}
	if l.file != nil {
		err = multierr.Append(err, l.file.Close())
	}
	return err
}
