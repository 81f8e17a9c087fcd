package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("ListenAddress = %q", cfg.ListenAddress)
	}
	if cfg.DispatchDuration.Std() <= cfg.ListenDuration.Std() {
		t.Errorf("default dispatch duration (%v) should exceed listen duration (%v)",
			cfg.DispatchDuration.Std(), cfg.ListenDuration.Std())
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
listen_address: 0.0.0.0:9090
listen_duration: 3m
jablotron:
  port: /dev/ttyUSB0
  probe_attempts: 7
conrad:
  cmd_endpoint: tcp://127.0.0.1:5555
  event_endpoint: tcp://127.0.0.1:5556
  fhem_address: 127.0.0.1:7072
credentials:
  file: /var/lib/gateway/credentials.properties
  save_delay: 10m
  passphrase: hunter2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q", cfg.ListenAddress)
	}
	if cfg.ListenDuration.Std() != 3*time.Minute {
		t.Errorf("ListenDuration = %v", cfg.ListenDuration.Std())
	}
	// dispatch duration not set: defaults to listen + 30s
	if cfg.DispatchDuration.Std() != 3*time.Minute+30*time.Second {
		t.Errorf("DispatchDuration = %v", cfg.DispatchDuration.Std())
	}
	if cfg.Jablotron.Port != "/dev/ttyUSB0" || cfg.Jablotron.ProbeAttempts != 7 {
		t.Errorf("Jablotron = %+v", cfg.Jablotron)
	}
	if cfg.Conrad.CmdEndpoint != "tcp://127.0.0.1:5555" {
		t.Errorf("Conrad = %+v", cfg.Conrad)
	}
	if cfg.Credentials.SaveDelay == nil || cfg.Credentials.SaveDelay.Std() != 10*time.Minute {
		t.Errorf("Credentials.SaveDelay = %v", cfg.Credentials.SaveDelay)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte("listen_duration: soon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a malformed duration")
	}
}
