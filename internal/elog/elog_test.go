package elog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eden.log")
	logger := New(Options{FilePath: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("hello")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the log file to contain the logged line")
	}
}

func TestNewDefaultsToStderrWithoutFilePath(t *testing.T) {
	logger := New(Options{})
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}
