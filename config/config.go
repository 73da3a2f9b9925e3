package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	toml "github.com/pelletier/go-toml"

	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/quota"
	"github.com/liquidgecka/eventfs/internal/workqueue"
	"github.com/liquidgecka/eventfs/spool"
)

type Config struct {
	top *top

	// A "Once" object that ensures that component initialization is
	// only ever run one time.
	initializeOnce sync.Once
}

// Parses a file and validates its contents, returning the objects that can
// be used for configuration later.
func Parse(filename string) (*Config, error) {
	// Open the file.
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	// Read the contents of the file into a toml parser.
	top := &top{}
	decoder := toml.NewDecoder(fd).Strict(true)
	if err := decoder.Decode(top); err != nil {
		return nil, err
	}

	// Success.. The toml was read, now we need to validate that it is
	// correct and that all of the values are valid.
	errors := top.validate()
	if errors != nil {
		return nil, fmt.Errorf("%s\n", strings.Join(errors, "\n"))
	}

	// Success!
	return &Config{top: top}, nil
}

// Initializes logging and builds all of the shared components (quota
// table, work queue, delay queue, spool). Safe to call more than once.
func (c *Config) Initialize() (err error) {
	c.initializeOnce.Do(func() {
		err = c.top.initialize()
	})
	return
}

// Returns the DelayQueue that will be used for entry expiration.
func (c *Config) GetDelayQueue() *delayqueue.DelayQueue {
	c.mustInitialize()
	return c.top.getDelayQueue()
}

// Returns the top level logger that was generated during initialization.
func (c *Config) GetLogger() *slog.Logger {
	c.mustInitialize()
	return c.top.Log.logger
}

// Returns the host:port that the metrics server should listen on. If
// metrics are not configured this returns an empty string.
func (c *Config) GetMetricsListen() string {
	if c.top.Metrics == nil {
		return ""
	}
	return *c.top.Metrics.Listen
}

// Returns an http.Handler that serves the prometheus registry built
// during initialization. Only valid when metrics are configured.
func (c *Config) GetMetricsHandler() http.Handler {
	c.mustInitialize()
	return promhttp.HandlerFor(
		c.top.getRegistry(),
		promhttp.HandlerOpts{})
}

// Returns the pid file (if configured). If not configured this returns
// and empty string.
func (c *Config) GetPIDFile() string {
	if c.top.PIDFile == nil {
		return ""
	} else {
		return *c.top.PIDFile
	}
}

// Returns the quota table built from the configuration.
func (c *Config) GetQuotaTable() *quota.Table {
	c.mustInitialize()
	return c.top.quotaTable
}

// Returns the work queue that processes file removal requests.
func (c *Config) GetRemoveWorkQueue() *workqueue.WorkQueue {
	c.mustInitialize()
	return c.top.removeWorkQueue
}

// Returns the spool built from the configuration.
func (c *Config) GetSpool() *spool.Spool {
	c.mustInitialize()
	return c.top.spool
}

// Returns the usage counters shared between the spool and the quota
// checks.
func (c *Config) GetUsage() *quota.Usage {
	c.mustInitialize()
	return c.top.usage
}

// Runs component initialization exactly one time, panicking if it
// fails. Callers that want the error should use Initialize() first.
func (c *Config) mustInitialize() {
	c.initializeOnce.Do(func() {
		if err := c.top.initialize(); err != nil {
			panic(err)
		}
	})
}
