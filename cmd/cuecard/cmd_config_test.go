package main

import "testing"

func TestDisplayValueMasksSecrets(t *testing.T) {
	if got := displayValue("provider.api_key", "sk-secret"); got != "***" {
		t.Errorf("api key echoed as %q, want masked", got)
	}
	if got := displayValue("telegram.token", "123:abc"); got != "***" {
		t.Errorf("telegram token echoed as %q, want masked", got)
	}
	if got := displayValue("log_level", "debug"); got != "debug" {
		t.Errorf("log_level echoed as %q, want verbatim", got)
	}
}
