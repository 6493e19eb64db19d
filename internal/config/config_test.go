package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rpclink/internal/testutil/testlog"
)

func TestLoadLinkConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "link.toml")
	body := `
name = "editor-bridge"
mode = "listen"
address = "127.0.0.1:7400"
drain_timeout = "500ms"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadLinkConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "editor-bridge" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.Mode != ModeListen {
		t.Fatalf("unexpected mode: %q", cfg.Mode)
	}
	if cfg.Address != "127.0.0.1:7400" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.DrainTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected drain timeout: %v", cfg.DrainTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.AdminAddr != "" {
		t.Fatalf("expected admin disabled by default, got %q", cfg.AdminAddr)
	}
}

func TestLoadLinkConfigMissingFile(t *testing.T) {
	testlog.Start(t)

	_, err := LoadLinkConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestParseLinkConfigRejectsInvalid(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"bad mode":      `mode = "broadcast"`,
		"empty address": `address = "  "`,
		"bad duration":  `drain_timeout = "soon"`,
		"negative":      `drain_timeout = "-1s"`,
		"zero":          `drain_timeout = "0s"`,
		"unknown key":   `retries = 3`,
		"empty name":    `name = ""`,
	}
	for name, body := range cases {
		if _, err := ParseLinkConfig(body); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseLinkConfigEmptyKeepsDefaults(t *testing.T) {
	testlog.Start(t)

	cfg, err := ParseLinkConfig("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg != DefaultLinkConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
