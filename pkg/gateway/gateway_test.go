package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNewFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "config.yaml", `
server:
  port: 9191
auth:
  api_keys:
    - name: ci-bot
      key: k-123
logging:
  level: debug
  format: text
`)
	sitesFile := writeFile(t, dir, "sites.yaml", `
sites:
  - name: prod
    url: http://rundeck.local:4440
    token: t-123
`)

	gw, err := NewFromConfigFile(configFile, sitesFile)
	if err != nil {
		t.Fatalf("NewFromConfigFile() error = %v", err)
	}

	if gw.config.Server.Port != 9191 {
		t.Errorf("Port = %d, want 9191", gw.config.Server.Port)
	}
	if gw.config.Server.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want the 30s default", gw.config.Server.WriteTimeout)
	}
	if len(gw.config.Auth.APIKeys) != 1 || gw.config.Auth.APIKeys[0].Name != "ci-bot" {
		t.Errorf("APIKeys = %+v, want ci-bot", gw.config.Auth.APIKeys)
	}
	if gw.Handler() == nil {
		t.Error("Handler() = nil, want the configured router")
	}
	if gw.Service() == nil {
		t.Error("Service() = nil, want the site registry service")
	}
}

func TestNewFromConfigFile_BadSites(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "config.yaml", "{}")
	sitesFile := writeFile(t, dir, "sites.yaml", `
sites:
  - name: broken
    url: http://rundeck.local:4440
`)

	if _, err := NewFromConfigFile(configFile, sitesFile); err == nil {
		t.Fatal("NewFromConfigFile() expected error for a site without credentials")
	}
}

func TestNew_RequiresSites(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatal("New() expected error without sites")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) expected error")
	}
}
