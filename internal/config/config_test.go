package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME and the working directory at a scratch dir and clears
// the key variables so the developer's own setup does not leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, name := range apiKeyEnv {
		t.Setenv(name, "")
	}
	t.Chdir(dir)
	return dir
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := isolate(t)
	c, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.FileLimits.MaxFileSizeMB != 200 || c.FileLimits.SamplingThresholdRows != 100000 || c.FileLimits.SamplingRows != 50000 {
		t.Fatalf("file limits = %+v", c.FileLimits)
	}
	if c.LLM.Provider != "gemini" || c.LLM.ModelName != "gemini-1.5-flash" || c.LLM.Temperature != 0 {
		t.Fatalf("llm = %+v", c.LLM)
	}
	if c.Execution.MaxSteps != 50000000 || c.UI.AppTitle != "EDA Agent" {
		t.Fatalf("execution/ui = %+v %+v", c.Execution, c.UI)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	yaml := "llm:\n  model_name: gemini-1.5-pro\n  temperature: 0.2\nfile_limits:\n  sampling_rows: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DATALOOM_FILE_LIMITS_SAMPLING_ROWS", "25")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LLM.ModelName != "gemini-1.5-pro" || c.LLM.Temperature != 0.2 {
		t.Fatalf("file values not applied: %+v", c.LLM)
	}
	if c.FileLimits.SamplingRows != 25 {
		t.Fatalf("env should override file, got %d", c.FileLimits.SamplingRows)
	}
	if c.FileLimits.MaxFileSizeMB != 200 {
		t.Fatalf("unset keys keep defaults, got %d", c.FileLimits.MaxFileSizeMB)
	}
}

func TestLoadAPIKeySources(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.APIKey != "from-dotenv" {
		t.Fatalf("api key = %q, want value from .env", c.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	c, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.APIKey != "from-env" {
		t.Fatalf("api key = %q, env should win over .env", c.APIKey)
	}

	t.Setenv("DATALOOM_API_KEY", "prefixed")
	c, _ = Load("")
	if c.APIKey != "prefixed" {
		t.Fatalf("api key = %q, DATALOOM_API_KEY should win", c.APIKey)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.LLM.Provider = "nope"
	c.LLM.Temperature = 3
	c.Execution.TimeoutSec = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"llm.provider", "llm.temperature", "execution.timeout_sec"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestSetAndSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	c := Default()
	for key, val := range map[string]string{
		"llm.model_name":           "gemini-1.5-pro",
		"execution.max_steps":      "1000",
		"analysis.max_log_entries": "50",
		"log.json":                 "true",
	} {
		if err := c.Set(key, val); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	if err := c.Set("llm.temperature", "warm"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := c.Set("nope", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
	path := filepath.Join(dir, "nested", "config.yaml")
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LLM.ModelName != "gemini-1.5-pro" || got.Execution.MaxSteps != 1000 || got.Analysis.MaxLogEntries != 50 || !got.Log.JSON {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadFileIgnoresEnvironment(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  model_name: from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("DATALOOM_LLM_MODEL_NAME", "from-env")
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.APIKey != "" || c.LLM.ModelName != "from-file" {
		t.Fatalf("environment leaked into file config: key=%q model=%q", c.APIKey, c.LLM.ModelName)
	}
}
