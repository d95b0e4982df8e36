package main

import "testing"

func TestParseLiveConfigRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := parseLiveConfig(nil, func(string) string { return "" }); err == nil {
		t.Fatal("parseLiveConfig error = nil, want missing-token rejection")
	}

	cfg, err := parseLiveConfig([]string{"-token", "abc"}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("parseLiveConfig error: %v", err)
	}
	if cfg.APIToken != "abc" {
		t.Fatalf("APIToken = %q", cfg.APIToken)
	}
}

func TestParseLiveConfigReadsEnv(t *testing.T) {
	t.Parallel()

	getenv := func(key string) string {
		switch key {
		case "KRISHI_API_TOKEN":
			return "env-token"
		case "SYSTEM_PROMPT":
			return "Speak Marathi."
		}
		return ""
	}
	cfg, err := parseLiveConfig([]string{"-model", "models/custom-voice"}, getenv)
	if err != nil {
		t.Fatalf("parseLiveConfig error: %v", err)
	}
	if cfg.APIToken != "env-token" || cfg.System != "Speak Marathi." {
		t.Fatalf("cfg = %+v, want env values", cfg)
	}
	if cfg.Model != "models/custom-voice" {
		t.Fatalf("Model = %q", cfg.Model)
	}
}
