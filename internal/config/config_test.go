package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points .env loading at a missing file so the developer's
// environment does not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv(EnvEnvFile, filepath.Join(t.TempDir(), "missing.env"))
	for _, name := range []string{
		EnvPort, EnvLogLevel, EnvDataDir, EnvLogFile, EnvHeadless, EnvConfigFile,
		EnvLLMAPIKey, EnvGeminiAPIKey, EnvLLMModel, EnvLLMBaseURL,
		EnvServicesURL, EnvServicesToken, EnvThoughtMode, EnvThoughtTimeout,
		EnvStepPacing, EnvLanguage, EnvFFmpegPath, EnvProxyURL,
	} {
		t.Setenv(name, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.ThoughtMode() != ThoughtSoft {
		t.Errorf("ThoughtMode() = %q, want %q", cfg.ThoughtMode(), ThoughtSoft)
	}
	if cfg.StepPacing() != DefaultStepPacing*time.Millisecond {
		t.Errorf("StepPacing() = %v", cfg.StepPacing())
	}
	if cfg.LLMAPIKey() != "" {
		t.Errorf("LLMAPIKey() = %q, want empty", cfg.LLMAPIKey())
	}
	if cfg.ServicesEnabled() {
		t.Error("ServicesEnabled() = true, want false")
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPort, "9001")
	t.Setenv(EnvGeminiAPIKey, "gem-key")
	t.Setenv(EnvServicesURL, "http://localhost:5000/")
	t.Setenv(EnvThoughtMode, "STRICT")
	t.Setenv(EnvStepPacing, "0")
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9001 {
		t.Errorf("Port() = %d, want 9001", cfg.Port())
	}
	if cfg.LLMAPIKey() != "gem-key" {
		t.Errorf("LLMAPIKey() = %q, want gem-key", cfg.LLMAPIKey())
	}
	if cfg.ServicesURL() != "http://localhost:5000" {
		t.Errorf("ServicesURL() = %q", cfg.ServicesURL())
	}
	if cfg.ThoughtMode() != ThoughtStrict {
		t.Errorf("ThoughtMode() = %q, want strict", cfg.ThoughtMode())
	}
	if cfg.StepPacing() != 0 {
		t.Errorf("StepPacing() = %v, want 0", cfg.StepPacing())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
}

func TestNew_PrefersOwnKeyOverGemini(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLLMAPIKey, "own")
	t.Setenv(EnvGeminiAPIKey, "gem")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMAPIKey() != "own" {
		t.Errorf("LLMAPIKey() = %q, want own", cfg.LLMAPIKey())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"bad thought mode", EnvThoughtMode, "loud"},
		{"negative pacing", EnvStepPacing, "-5"},
		{"bad headless", EnvHeadless, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q should fail", tt.env, tt.value)
			}
		})
	}
}

func TestNew_DotEnvFile(t *testing.T) {
	isolate(t)
	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("CRE8R_LANGUAGE=de\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvEnvFile, envPath)
	// godotenv does not override what is already set, so clear it first.
	os.Unsetenv(EnvLanguage)
	t.Cleanup(func() { os.Unsetenv(EnvLanguage) })

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Language() != "de" {
		t.Errorf("Language() = %q, want de", cfg.Language())
	}
}

func TestNew_ConfigFileOverlay(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "agent.cue")
	content := `
port: 8123
session: {
	thoughtMode: "off"
	stepPacingMs: 20
}
services: url: "http://speech.local/"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvPort, "8124")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8124 {
		t.Errorf("Port() = %d, env should win over file", cfg.Port())
	}
	if cfg.ThoughtMode() != ThoughtOff {
		t.Errorf("ThoughtMode() = %q, want off", cfg.ThoughtMode())
	}
	if cfg.StepPacing() != 20*time.Millisecond {
		t.Errorf("StepPacing() = %v, want 20ms", cfg.StepPacing())
	}
	if cfg.ServicesURL() != "http://speech.local" {
		t.Errorf("ServicesURL() = %q", cfg.ServicesURL())
	}
}

func TestParseFile_RejectsUnknownAndInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", `apiKey: "secret"`, "apiKey"},
		{"bad level", `logLevel: "verbose"`, ""},
		{"bad port", `port: 0`, ""},
		{"bad nested mode", `session: thoughtMode: "loud"`, ""},
		{"nested unknown", `llm: key: "x"`, "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFile("test.cue", []byte(tt.content))
			if err == nil {
				t.Fatal("parseFile() should fail")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseFile_AcceptsJSON(t *testing.T) {
	f, err := parseFile("agent.json", []byte(`{"headless": true, "llm": {"model": "gemini-pro"}}`))
	if err != nil {
		t.Fatalf("parseFile() error = %v", err)
	}
	if f.Headless == nil || !*f.Headless {
		t.Error("Headless not decoded")
	}
	if f.LLM == nil || f.LLM.Model == nil || *f.LLM.Model != "gemini-pro" {
		t.Error("llm.model not decoded")
	}
}
