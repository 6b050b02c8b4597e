package config

import (
	"flag"
	"os"
	"time"

	"github.com/pensieve-app/pensieve/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the sync backend
//	-f string   path to the local database file
//	-w          restrict automatic syncing to Wi-Fi
//	-t int      sync cycle timeout in seconds
//	-i int      daemon sync interval in seconds
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-w", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the sync backend")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "path to the local database file")
	fs.BoolVar(&cfg.WifiOnlySync, "w", cfg.WifiOnlySync, "sync over Wi-Fi only")
	syncTimeout := fs.Int("t", int(cfg.SyncTimeout.Seconds()), "sync timeout (in seconds)")
	daemonInterval := fs.Int("i", int(cfg.DaemonInterval.Seconds()), "daemon sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncTimeout = time.Duration(*syncTimeout) * time.Second
	cfg.DaemonInterval = time.Duration(*daemonInterval) * time.Second
}
