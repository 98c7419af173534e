package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. It returns a closer for
// the log file, if one was opened.
func InitLogger(cfg LogConfig) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "unknown log level %q", cfg.Level)
		}
		level = l
	}
	if cfg.Format != "" && cfg.Format != "text" && cfg.Format != "json" {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown log format %q", cfg.Format)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "opening log file")
		}
		out, closer = f, f
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.File != ""}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
