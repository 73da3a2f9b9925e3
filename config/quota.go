package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	toml "github.com/pelletier/go-toml"

	"github.com/liquidgecka/eventfs/internal/quota"
)

var (
	defaultQuotaMaxFiles       = uint64(0)
	defaultQuotaMaxDirs        = uint64(0)
	defaultQuotaMaxFilesPerDir = uint64(0)
	defaultQuotaMaxBytes       = uint64(0)
)

type quotaConfig struct {
	// Default limits applied to any owner that does not have a quota
	// file of its own. A zero value disables the limit.
	MaxFiles       *uint64 `toml:"max_files"`
	MaxDirs        *uint64 `toml:"max_dirs"`
	MaxFilesPerDir *uint64 `toml:"max_files_per_dir"`
	MaxBytes       *uint64 `toml:"max_bytes"`

	// A directory of per owner quota files. Every *.conf file in the
	// directory is parsed as a quotaFile and installed as an override
	// for the owner it names.
	QuotasDir *string `toml:"quotas_dir"`
}

// A single per owner quota override loaded from the quotas directory.
// Any limit left unset inherits the default from the [quota] section.
type quotaFile struct {
	Owner          *int64  `toml:"owner"`
	MaxFiles       *uint64 `toml:"max_files"`
	MaxDirs        *uint64 `toml:"max_dirs"`
	MaxFilesPerDir *uint64 `toml:"max_files_per_dir"`
	MaxBytes       *uint64 `toml:"max_bytes"`
}

func (q *quotaConfig) validate(t *top) []string {
	var errors []string

	// MaxFiles
	if q.MaxFiles == nil {
		q.MaxFiles = &defaultQuotaMaxFiles
	}

	// MaxDirs
	if q.MaxDirs == nil {
		q.MaxDirs = &defaultQuotaMaxDirs
	}

	// MaxFilesPerDir
	if q.MaxFilesPerDir == nil {
		q.MaxFilesPerDir = &defaultQuotaMaxFilesPerDir
	}

	// MaxBytes
	if q.MaxBytes == nil {
		q.MaxBytes = &defaultQuotaMaxBytes
	}

	// QuotasDir
	if q.QuotasDir != nil && !filepath.IsAbs(*q.QuotasDir) {
		errors = append(errors, "quota.quotas_dir must be an absolute path.")
	}

	// Return any errors encountered.
	return errors
}

// Builds the quota.Table from the defaults in the [quota] section and
// any per owner override files found in the quotas directory.
func (q *quotaConfig) load() (*quota.Table, error) {
	defaults := quota.Limits{
		MaxFiles:       *q.MaxFiles,
		MaxDirs:        *q.MaxDirs,
		MaxFilesPerDir: *q.MaxFilesPerDir,
		MaxBytes:       *q.MaxBytes,
	}
	table := quota.NewTable(defaults)
	if q.QuotasDir == nil {
		return table, nil
	}
	files, err := os.ReadDir(*q.QuotasDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading the quotas directory")
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".conf") {
			continue
		}
		path := filepath.Join(*q.QuotasDir, file.Name())
		qf, err := parseQuotaFile(path)
		if err != nil {
			return nil, err
		}
		limits := defaults
		if qf.MaxFiles != nil {
			limits.MaxFiles = *qf.MaxFiles
		}
		if qf.MaxDirs != nil {
			limits.MaxDirs = *qf.MaxDirs
		}
		if qf.MaxFilesPerDir != nil {
			limits.MaxFilesPerDir = *qf.MaxFilesPerDir
		}
		if qf.MaxBytes != nil {
			limits.MaxBytes = *qf.MaxBytes
		}
		table.Set(*qf.Owner, limits)
	}
	return table, nil
}

func parseQuotaFile(path string) (*quotaFile, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening quota file %s", path)
	}
	defer fd.Close()
	qf := &quotaFile{}
	decoder := toml.NewDecoder(fd).Strict(true)
	if err := decoder.Decode(qf); err != nil {
		return nil, errors.Wrapf(err, "parsing quota file %s", path)
	}
	if qf.Owner == nil {
		return nil, errors.Errorf("quota file %s does not name an owner", path)
	}
	return qf, nil
}
