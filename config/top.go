package config

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/quota"
	"github.com/liquidgecka/eventfs/internal/workqueue"
	"github.com/liquidgecka/eventfs/spool"
)

type top struct {
	// Spool configuration for the process.
	Spool spoolConfig `toml:"spool"`

	// Default quota limits and the per owner quota overrides.
	Quota quotaConfig `toml:"quota"`

	// Log configuration for the process.
	Log log `toml:"log"`

	// Metrics listener configuration. If the section is absent then no
	// metrics are registered or served.
	Metrics *metrics `toml:"metrics"`

	// If configured then the process id will be written to this file.
	PIDFile *string `toml:"pidfile"`

	// A delay queue used to manage entry expiration and reap sweeps.
	delayQueue *delayqueue.DelayQueue

	// A work queue used for processing removal of files on disk.
	removeWorkQueue *workqueue.WorkQueue

	// The prometheus registry that collectors are installed into when
	// metrics are enabled.
	registry *prometheus.Registry

	// The quota table built from the [quota] section and the quotas
	// directory, plus the usage counters tracked against it.
	quotaTable *quota.Table
	usage      *quota.Usage

	// The spool built from the configuration.
	spool *spool.Spool
}

func (t *top) getDelayQueue() *delayqueue.DelayQueue {
	if t.delayQueue == nil {
		t.delayQueue = &delayqueue.DelayQueue{}
	}
	return t.delayQueue
}

func (t *top) getRegistry() *prometheus.Registry {
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
	}
	return t.registry
}

// Builds every component the daemon needs once the logger exists. This
// is only ever run once via the Config initialization Once.
func (t *top) initialize() error {
	if err := t.Log.initLogging(); err != nil {
		return err
	}
	table, err := t.Quota.load()
	if err != nil {
		return err
	}
	t.quotaTable = table
	t.usage = quota.NewUsage()
	var wqm *workqueue.Metrics
	if t.Metrics != nil {
		wqm, err = workqueue.NewMetrics("remove", t.getRegistry())
		if err != nil {
			return err
		}
	}
	t.removeWorkQueue = &workqueue.WorkQueue{}
	t.removeWorkQueue.Init(workqueue.Settings{
		BaseLogger: t.Log.logger,
		Metrics:    wqm,
	})
	t.spool = spool.New(&spool.Settings{
		BaseDirectory:   *t.Spool.Directory,
		BaseLogger:      t.Log.logger,
		DefaultTTL:      *t.Spool.DefaultTTL,
		DelayQueue:      t.getDelayQueue(),
		ReapInterval:    *t.Spool.ReapInterval,
		RemoveQueue:     t.removeWorkQueue,
		Quotas:          t.quotaTable,
		Usage:           t.usage,
		VerifyChecksums: *t.Spool.VerifyChecksums,
	})
	return nil
}

func (t *top) validate() []string {
	var errors []string

	// Spool
	errors = append(errors, t.Spool.validate(t)...)

	// Quota
	errors = append(errors, t.Quota.validate(t)...)

	// Log
	errors = append(errors, t.Log.validate(t, "log")...)

	// Metrics
	if t.Metrics != nil {
		errors = append(errors, t.Metrics.validate(t)...)
	}

	// PIDFile
	if t.PIDFile != nil {
		// TODO: Ideally we will do some basic checks to make sure that this
		// path is valid here. For now we just accept any string value and
		// fail out when writing the PID file later.
	}

	// Return any errors found.
	return errors
}
