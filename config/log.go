package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	defaultLogFormat = "plain"
	defaultLogDebug  = false
)

type log struct {
	// A log file to log too. If not set then logs are written to the
	// standard error stream.
	File *string `toml:"file"`

	// Which format to use when logging, valid options are "plain" and
	// "json". Default is plain.
	Format *string `toml:"format"`

	// Enable debug logging for this channel.
	Debug *bool `toml:"debug"`

	// The name passed in to validate() initially.
	name string

	// A reference to the slog.Logger that was created for this
	// log configuration.
	logger *slog.Logger

	// If the log output was opened as a file then this tracks the
	// handle so it can be closed during shutdown.
	closer io.Closer
}

func (l *log) initLogging() error {
	output := io.Writer(os.Stderr)
	if l.File != nil {
		fd, err := os.OpenFile(
			*l.File,
			os.O_CREATE|os.O_APPEND|os.O_WRONLY,
			0644)
		if err != nil {
			return fmt.Errorf(
				"%s had an error initializing: %s",
				l.name,
				err.Error())
		}
		l.closer = fd
		output = fd
		if console != nil && *console {
			output = io.MultiWriter(fd, os.Stdout)
		}
	}
	level := slog.LevelInfo
	if (debug != nil && *debug) || *l.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch *l.Format {
	case "json":
		l.logger = slog.New(slog.NewJSONHandler(output, opts))
	default:
		l.logger = slog.New(slog.NewTextHandler(output, opts))
	}
	return nil
}

func (l *log) validate(t *top, name string) []string {
	var errors []string

	// Store some information for referencing later.
	l.name = name

	// Format
	if l.Format == nil {
		l.Format = &defaultLogFormat
	} else if *l.Format != "plain" && *l.Format != "json" {
		errors = append(errors, name+".format must be 'plain' or 'json'.")
	}

	// Debug
	if l.Debug == nil {
		l.Debug = &defaultLogDebug
	}

	// Return any errors encountered.
	return errors
}
