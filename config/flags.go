package config

import (
	"flag"
)

var (
	console *bool
	debug   *bool
)

// Registers the command line flags that alter how the [log] section is
// interpreted. Must be called before flag.Parse.
func SetupFlags() {
	console = flag.Bool(
		"console",
		false,
		"Tee log output to stdout as well as the configured log file.")

	debug = flag.Bool(
		"debug",
		false,
		"Force debug level logging regardless of the config file.")
}
