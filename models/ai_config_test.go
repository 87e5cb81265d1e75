package models

import "testing"

func TestMaskedKey(t *testing.T) {
	cases := map[string]string{
		"sk-abcdef1234567890": "sk-abcde...",
		"sk-abcdef":           "sk-abcde...",
		"short":               "s...",
		"":                    "",
	}
	for key, want := range cases {
		cfg := AIConfig{APIKey: key}
		if got := cfg.MaskedKey(); got != want {
			t.Errorf("MaskedKey(%q) = %q, want %q", key, got, want)
		}
	}
}
