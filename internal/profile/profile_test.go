package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnvVars() {
	for _, key := range []string{
		"HIWAR_LLM_PROVIDER",
		"HIWAR_LLM_API_KEY",
		"HIWAR_LLM_BASE_URL",
		"HIWAR_LLM_MODEL",
		"HIWAR_LLM_TIMEOUT_SECONDS",
		"HIWAR_JWT_SECRET",
		"HIWAR_DEFAULT_LOCALE",
	} {
		os.Unsetenv(key)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"LLMProvider default", "openai", p.LLMProvider},
		{"LLMBaseURL default", "https://api.openai.com/v1", p.LLMBaseURL},
		{"LLMModel default", "gpt-4o", p.LLMModel},
		{"DefaultLocale default", "en", p.DefaultLocale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}
	if p.LLMTimeout != 60 {
		t.Errorf("LLMTimeout: expected 60, got %d", p.LLMTimeout)
	}
}

func TestFromEnvProviderDefaults(t *testing.T) {
	clearEnvVars()
	os.Setenv("HIWAR_LLM_PROVIDER", "deepseek")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.LLMBaseURL != "https://api.deepseek.com" {
		t.Errorf("expected deepseek base URL, got %q", p.LLMBaseURL)
	}
	if p.LLMModel != "deepseek-chat" {
		t.Errorf("expected deepseek-chat, got %q", p.LLMModel)
	}
}

func TestFromEnvUnknownProviderFallsBack(t *testing.T) {
	clearEnvVars()
	os.Setenv("HIWAR_LLM_PROVIDER", "bogus")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "openai" {
		t.Errorf("expected fallback to openai, got %q", p.LLMProvider)
	}
}

func TestFromEnvUnsupportedLocaleFallsBack(t *testing.T) {
	clearEnvVars()
	os.Setenv("HIWAR_DEFAULT_LOCALE", "fr")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.DefaultLocale != "en" {
		t.Errorf("expected fallback to en, got %q", p.DefaultLocale)
	}
}

func TestValidateSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{
		Mode:   "dev",
		Data:   dir,
		Driver: "sqlite",
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.DSN != filepath.Join(dir, "hiwar_dev.db") {
		t.Errorf("unexpected DSN %q", p.DSN)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "mysql",
	}
	if err := p.Validate(); err == nil {
		t.Error("Validate() with unknown driver should return error")
	}
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "postgres",
	}
	if err := p.Validate(); err == nil {
		t.Error("Validate() with postgres and no DSN should return error")
	}
}
