package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestConfigOverridePrecedence checks that a user config overrides a
// system config's value for the same key, and that the user config's
// value contains ${HOME}/${USER} substitutions resolved against
// HOME=/home/bob, USER=bob. Expected effective value:
// /home/bob/bob/userCustomIgnore.
func TestConfigOverridePrecedence(t *testing.T) {
	systemFile := writeTOML(t, `
[core]
ignore-file = "/should_be_over_ridden"
`)
	userFile := writeTOML(t, `
[core]
ignore-file = "${HOME}/${USER}/userCustomIgnore"
`)

	l := &Loader{Env: map[string]string{"HOME": "/home/bob", "USER": "bob"}}
	cfg, err := l.Load(systemFile, userFile, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IgnoreFile != "/home/bob/bob/userCustomIgnore" {
		t.Fatalf("got %q, want /home/bob/bob/userCustomIgnore", cfg.IgnoreFile)
	}
}

func TestCLIOverrideBeatsFiles(t *testing.T) {
	systemFile := writeTOML(t, `
[core]
eden-dir = "/system-eden-dir"
`)
	userFile := writeTOML(t, `
[core]
eden-dir = "/user-eden-dir"
`)
	l := &Loader{}
	cfg, err := l.Load(systemFile, userFile, map[string]string{"core.eden-dir": "/cli-eden-dir"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EdenDir != "/cli-eden-dir" {
		t.Fatalf("got %q, want /cli-eden-dir", cfg.EdenDir)
	}
}

type recordingLogger struct{ keys []string }

func (l *recordingLogger) LogUnknownKey(file, key string) { l.keys = append(l.keys, key) }

func TestUnknownKeysAreLoggedAndIgnored(t *testing.T) {
	file := writeTOML(t, `
[core]
ignore-file = "/a"
unknown-key = "surprise"

[nonsense]
whatever = "1"
`)
	logger := &recordingLogger{}
	l := &Loader{Logger: logger}
	cfg, err := l.Load(file, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IgnoreFile != "/a" {
		t.Fatalf("got %q, want /a", cfg.IgnoreFile)
	}
	if len(logger.keys) != 2 {
		t.Fatalf("got %d unknown keys logged, want 2: %v", len(logger.keys), logger.keys)
	}
}

func TestMalformedTOMLIsConfigError(t *testing.T) {
	file := writeTOML(t, `this is not valid toml =====`)
	l := &Loader{}
	if _, err := l.Load(file, "", nil); err == nil {
		t.Fatal("expected a config error for malformed TOML")
	}
}

func TestResolveClientCertificateFallsBackToLegacyPath(t *testing.T) {
	cfg := Config{
		ClientCertificateLocations: []string{"/missing1", "/missing2"},
		ClientCertificate:          "/legacy",
	}
	exists := func(path string) bool { return path == "/legacy" }
	got, ok := cfg.ResolveClientCertificate(exists)
	if !ok || got != "/legacy" {
		t.Fatalf("got (%q, %v), want (/legacy, true)", got, ok)
	}
}

func TestResolveClientCertificatePrefersFirstExistingLocation(t *testing.T) {
	cfg := Config{
		ClientCertificateLocations: []string{"/missing", "/found", "/also-found"},
		ClientCertificate:          "/legacy",
	}
	exists := func(path string) bool { return path == "/found" || path == "/also-found" }
	got, ok := cfg.ResolveClientCertificate(exists)
	if !ok || got != "/found" {
		t.Fatalf("got (%q, %v), want (/found, true)", got, ok)
	}
}
