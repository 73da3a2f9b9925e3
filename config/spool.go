package config

import (
	"path/filepath"
	"time"
)

var (
	defaultSpoolDefaultTTL     = time.Hour
	defaultSpoolReapInterval   = time.Minute * 5
	defaultSpoolVerifyChecksum = true
)

type spoolConfig struct {
	// The directory that queues and their entries will be written
	// under. This is the only required field in the section.
	Directory *string `toml:"directory"`

	// How long an entry is allowed to live in a queue before it is
	// expired and removed automatically.
	DefaultTTL *time.Duration `toml:"default_ttl"`

	// How often the reaper will sweep the spool directory looking for
	// expired entries that are no longer tracked in memory.
	ReapInterval *time.Duration `toml:"reap_interval"`

	// If true then entry checksums are verified on every read.
	VerifyChecksums *bool `toml:"verify_checksums"`
}

func (s *spoolConfig) validate(t *top) []string {
	var errors []string

	// Directory
	if s.Directory == nil {
		errors = append(errors, "spool.directory is a required field.")
	} else if !filepath.IsAbs(*s.Directory) {
		errors = append(errors, "spool.directory must be an absolute path.")
	}

	// DefaultTTL
	if s.DefaultTTL == nil {
		s.DefaultTTL = &defaultSpoolDefaultTTL
	} else if *s.DefaultTTL <= 0 {
		errors = append(errors, "spool.default_ttl must be greater than zero.")
	}

	// ReapInterval
	if s.ReapInterval == nil {
		s.ReapInterval = &defaultSpoolReapInterval
	} else if *s.ReapInterval <= 0 {
		errors = append(
			errors,
			"spool.reap_interval must be greater than zero.")
	}

	// VerifyChecksums
	if s.VerifyChecksums == nil {
		s.VerifyChecksums = &defaultSpoolVerifyChecksum
	}

	// Return any errors encountered.
	return errors
}
