package utils

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureLog redirects the standard logger into a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		GetLogger().SetVerbose(false)
	})
	return &buf
}

func TestLoggerLevels(t *testing.T) {
	buf := captureLog(t)
	logger := GetLogger()
	logger.SetVerbose(false)

	logger.Debug("hidden %d", 1)
	logger.Info("job %s saved", "j1")
	logger.Warn("push failed")
	logger.Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug output should be suppressed when not verbose, got: %s", out)
	}
	for _, want := range []string{"[INFO] job j1 saved", "[WARN] push failed", "[ERROR] boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got: %s", want, out)
		}
	}

	logger.SetVerbose(true)
	if !logger.IsVerbose() {
		t.Fatal("IsVerbose() should be true after SetVerbose(true)")
	}
	Debugf("visible %d", 2)
	if !strings.Contains(buf.String(), "[DEBUG] visible 2") {
		t.Errorf("debug output should appear when verbose, got: %s", buf.String())
	}
}

func TestLogOperation(t *testing.T) {
	buf := captureLog(t)
	GetLogger().SetVerbose(true)

	wantErr := errors.New("remote offline")
	err := LogOperationf("push %s", func() error { return wantErr }, "jobs")
	if !errors.Is(err, wantErr) {
		t.Fatalf("LogOperationf() error = %v, want %v", err, wantErr)
	}
	out := buf.String()
	if !strings.Contains(out, "Starting operation: push jobs") {
		t.Errorf("missing start line, got: %s", out)
	}
	if !strings.Contains(out, "Operation failed: push jobs - remote offline") {
		t.Errorf("missing failure line, got: %s", out)
	}
}

func TestSetLogFile(t *testing.T) {
	prevOut, prevFlags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		_ = SetLogFile("", 0, 0)
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	path := filepath.Join(t.TempDir(), "dawncrm.log")
	if err := SetLogFile(path, 1, 7); err != nil {
		t.Fatalf("SetLogFile() error = %v", err)
	}
	if got := LogFilePath(); got != path {
		t.Errorf("LogFilePath() = %q, want %q", got, path)
	}

	Infof("written to %s", "file")

	if err := SetLogFile("", 0, 0); err != nil {
		t.Fatalf("SetLogFile(\"\") error = %v", err)
	}
	if got := LogFilePath(); got != "" {
		t.Errorf("LogFilePath() after reset = %q, want empty", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] written to file") {
		t.Errorf("log file should contain the message, got: %s", data)
	}
}
