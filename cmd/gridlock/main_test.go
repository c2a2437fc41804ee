package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
log_dir = %q
`, filepath.Join(base, "data"), filepath.Join(base, "work"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateAndListEpisodes(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, configPath, "generate", "--type", "weekly-recap")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "queued") {
		t.Fatalf("unexpected generate output: %s", out)
	}

	out, err = runCommand(t, configPath, "episodes")
	if err != nil {
		t.Fatalf("episodes: %v\n%s", err, out)
	}
	if !strings.Contains(out, "weekly-recap") || !strings.Contains(out, "pending") {
		t.Fatalf("episode listing missing row: %s", out)
	}
}

func TestRetryRejectsPendingEpisode(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCommand(t, configPath, "generate", "--type", "weekly-recap"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err := runCommand(t, configPath, "retry", "1")
	if err == nil {
		t.Fatalf("retry of a pending episode should fail")
	}
	if !strings.Contains(err.Error(), "failed") {
		t.Fatalf("unexpected retry error: %v", err)
	}
}

func TestStatusUnknownEpisode(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, configPath, "status", "42")
	if err == nil {
		t.Fatalf("status of a missing episode should fail")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unexpected status error: %v", err)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v\n%s", err, out.String())
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	// A second init must not clobber the file.
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("second config init should refuse to overwrite")
	}
}

func TestCharactersRoundTrip(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, configPath, "characters", "add", "nervous-engineer",
		"--role", "race-engineer", "--team", "Apex GP", "--personality", "permanently on the edge of panic")
	if err != nil {
		t.Fatalf("characters add: %v\n%s", err, out)
	}

	out, err = runCommand(t, configPath, "characters", "list")
	if err != nil {
		t.Fatalf("characters list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "nervous-engineer") || !strings.Contains(out, "Apex GP") {
		t.Fatalf("character listing missing row: %s", out)
	}
}
