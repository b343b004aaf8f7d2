package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/claude-gateway/internal/config"
)

func runConfigPath(t *testing.T) string {
	t.Helper()
	var out bytes.Buffer
	configPathCmd.SetOut(&out)
	t.Cleanup(func() { configPathCmd.SetOut(nil) })
	if err := configPath(configPathCmd, nil); err != nil {
		t.Fatalf("configPath failed: %v", err)
	}
	return strings.TrimSpace(out.String())
}

func TestConfigPathReportsLoadedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	configFile = ""

	if got := runConfigPath(t); !strings.HasPrefix(got, "No config file found") {
		t.Fatalf("output = %q, want no-file message", got)
	}

	local := config.AppName + ".yaml"
	if err := os.WriteFile(filepath.Join(dir, local), []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if got := runConfigPath(t); got != local {
		t.Fatalf("output = %q, want %q", got, local)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.File != local {
		t.Fatalf("Load read %q, config path reported %q", cfg.File, local)
	}
}
