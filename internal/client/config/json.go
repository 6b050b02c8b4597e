package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pensieve-app/pensieve/internal/flagx"
	"github.com/pensieve-app/pensieve/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	DatabasePath   string         `json:"database_path"`
	WifiOnlySync   bool           `json:"wifi_only_sync"`
	SyncTimeout    timex.Duration `json:"sync_timeout"`
	DaemonInterval timex.Duration `json:"daemon_interval"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c or -config command-line flags; when neither is set,
// no JSON is loaded. Read or unmarshal errors panic; the intended usage is
// defaults -> parseJson -> parseFlags, where later stages override earlier
// ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.DatabasePath = jc.DatabasePath
	cfg.WifiOnlySync = jc.WifiOnlySync
	cfg.SyncTimeout = time.Duration(jc.SyncTimeout.Duration)
	cfg.DaemonInterval = time.Duration(jc.DaemonInterval.Duration)
}
