package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/liquidgecka/eventfs/config"
	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/sloghelper"
	"github.com/liquidgecka/eventfs/internal/workqueue"
	"github.com/liquidgecka/eventfs/spool"
)

// Common arguments.
var (
	Config = flag.String(
		"c",
		"",
		"Path to the config file.")

	VersionFlag = flag.Bool(
		"V",
		false,
		"Display the build version and then exit.")
)

// Common variables that are held for the life of the binary.
var (
	DelayQueue    *delayqueue.DelayQueue
	RemoveQueue   *workqueue.WorkQueue
	Spool         *spool.Spool
	MetricsServer *http.Server
	log           *slog.Logger
)

// Expected to be set via -ldflags/-X by the linker
var BuildVersion string
var BuildTimeEpoch string

func Version() string {
	if BuildVersion == "" {
		BuildVersion = "Unknown"
		BuildTimeEpoch = "unknown"
	}
	return fmt.Sprintf(
		"eventfs: %s ts=%s go=%s\n",
		BuildVersion,
		BuildTimeEpoch,
		runtime.Version())
}

func WritePIDFile(file string) {
	log.Debug(
		"Writing pid file.",
		sloghelper.String("file", file))
	fd, err := os.OpenFile(
		file,
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY,
		0644)
	if err != nil {
		log.Error(
			"Error opening PID file.",
			sloghelper.String("file", file),
			sloghelper.Error("error", err))
		os.Exit(1)
	}
	defer fd.Close()
	if _, err = fd.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		log.Error(
			"Error writing pid file.",
			sloghelper.String("file", file),
			sloghelper.Error("error", err))
		os.Exit(1)
	}
}

// All of the initialization work happens in this function in order to allow
// a limited scope of variables so that startup temporary data can be purged
// once the daemon is fully running.
func configure() {
	// Parse the config file.
	cnf, err := config.Parse(*Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	} else if err := cnf.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	} else {
		DelayQueue = cnf.GetDelayQueue()
		RemoveQueue = cnf.GetRemoveWorkQueue()
		Spool = cnf.GetSpool()
		log = cnf.GetLogger()
	}

	// Log some build information.
	log.Info(
		"Daemon initializing.",
		sloghelper.String("build-version", BuildVersion),
		sloghelper.String("build-time", BuildTimeEpoch))

	// Start the delay queue and the removal work queue before the spool
	// so entry expirations scheduled during the scan have somewhere to go.
	DelayQueue.Start()
	if err := RemoveQueue.Start(); err != nil {
		log.Error(
			"Unable to start the removal work queue.",
			sloghelper.Error("error", err))
		os.Exit(2)
	}

	// Start the spool. This scans the spool directory and recovers any
	// queues and entries left behind by a previous run.
	if err := Spool.Start(); err != nil {
		log.Error(
			"Unable to start the spool.",
			sloghelper.Error("error", err))
		os.Exit(3)
	}

	// Start the metrics listener (if configured).
	if listen := cnf.GetMetricsListen(); listen != "" {
		MetricsServer = &http.Server{
			Addr:    listen,
			Handler: cnf.GetMetricsHandler(),
		}
		go func() {
			err := MetricsServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				log.Error(
					"Metrics server exited.",
					sloghelper.Error("error", err))
				os.Exit(4)
			}
		}()
		log.Info(
			"Metrics server is serving.",
			sloghelper.String("addr", listen))
	}

	// Write the pid file (if configured).
	if pidfile := cnf.GetPIDFile(); pidfile != "" {
		WritePIDFile(pidfile)
	}

	log.Info("Spool is accepting work.")
}

// Stops the components in the reverse of their startup order. The spool
// goes first so that nothing new is handed to the queues while they
// drain.
func shutdown() {
	log.Info("Shutting down.")
	if MetricsServer != nil {
		MetricsServer.Close()
	}
	Spool.Stop()
	if err := RemoveQueue.Stop(); err != nil {
		log.Error(
			"Error stopping the removal work queue.",
			sloghelper.Error("error", err))
	}
	DelayQueue.Stop()
	log.Info("Shutdown complete.")
}

func main() {
	// Add config arguments
	config.SetupFlags()

	// Check that a config file was provided.
	flag.Parse()
	if *VersionFlag {
		fmt.Print(Version())
		os.Exit(0)
	}
	if *Config == "" {
		fmt.Fprintf(os.Stderr, Version())
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "-c is a required parameter.\n")
		os.Exit(1)
	}

	// Run through the configuration work.
	configure()

	// Wait for a signal telling us to exit and then tear the stack
	// down cleanly.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Info(
		"Received signal.",
		sloghelper.String("signal", sig.String()))
	shutdown()
}
