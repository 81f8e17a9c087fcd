// Package config loads the gateway-wide tunables from a YAML file.
// Bootstrap parameters (paths, addresses) stay on the command line; this
// file carries the knobs an operator adjusts without redeploying.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for the "30s"/"5m"
// string forms.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the gateway configuration tree.
type Config struct {
	// ListenAddress is where the HTTP control surface binds.
	ListenAddress string `yaml:"listen_address"`

	// ListenDuration is the default discovery window length;
	// DispatchDuration is how long newly recognized devices keep being
	// dispatched as new_device after a discovery starts. Both are policy;
	// DispatchDuration usually exceeds ListenDuration because a node's
	// queried state can arrive late.
	ListenDuration   Duration `yaml:"listen_duration"`
	DispatchDuration Duration `yaml:"dispatch_duration"`

	Jablotron JablotronConfig `yaml:"jablotron"`
	Conrad    ConradConfig    `yaml:"conrad"`

	Credentials CredentialsConfig `yaml:"credentials"`

	// DeviceCachePath is the best-effort SQLite cache of device
	// descriptions. Empty selects the per-user default location.
	DeviceCachePath string `yaml:"device_cache_path"`
}

type JablotronConfig struct {
	// Port is the serial device of the Jablotron dongle; empty disables
	// the Jablotron manager.
	Port string `yaml:"port"`

	ProbeTimeout  Duration `yaml:"probe_timeout"`
	ProbeAttempts int      `yaml:"probe_attempts"`
	IOReadTimeout Duration `yaml:"io_read_timeout"`
	IOErrorSleep  Duration `yaml:"io_error_sleep"`
}

type ConradConfig struct {
	// CmdEndpoint/EventEndpoint are the bridge's ZMQ interfaces; both
	// empty disables the Conrad manager.
	CmdEndpoint   string `yaml:"cmd_endpoint"`
	EventEndpoint string `yaml:"event_endpoint"`

	// FHEMAddress enables the direct FHEM telnet poller when non-empty.
	FHEMAddress     string   `yaml:"fhem_address"`
	FHEMRefreshTime Duration `yaml:"fhem_refresh_time"`
	FHEMReconnect   Duration `yaml:"fhem_reconnect_time"`
}

type CredentialsConfig struct {
	// File is the flat credentials file; empty disables persistence.
	File string `yaml:"file"`

	// SaveDelay debounces autosave after a mutation; negative disables
	// autosave entirely.
	SaveDelay *Duration `yaml:"save_delay"`

	// Passphrase derives the symmetric key encrypting secret fields.
	Passphrase string `yaml:"passphrase"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddress:    "127.0.0.1:8080",
		ListenDuration:   Duration(2 * time.Minute),
		DispatchDuration: Duration(2*time.Minute + 30*time.Second),
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	// A file that leaves dispatch_duration unset gets it derived from its
	// own listen_duration below, not the built-in default.
	cfg.DispatchDuration = 0
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.DispatchDuration <= 0 {
		cfg.DispatchDuration = cfg.ListenDuration + Duration(30*time.Second)
	}
	return cfg, nil
}
