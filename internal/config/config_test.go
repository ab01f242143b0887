package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":8790" {
		t.Errorf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.AcceptThreshold != 0.6 {
		t.Errorf("unexpected threshold: %g", cfg.AcceptThreshold)
	}
	if cfg.FaninPolicy != "aggregate" || cfg.ResolutionPolicy != "forward_all" {
		t.Errorf("unexpected policies: %s / %s", cfg.FaninPolicy, cfg.ResolutionPolicy)
	}
	if cfg.MaxDelegationDepth != 10 {
		t.Errorf("unexpected max depth: %d", cfg.MaxDelegationDepth)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("unexpected fetch timeout: %s", cfg.FetchTimeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PARLIAMENT_LISTEN_ADDR", ":9999")
	t.Setenv("PARLIAMENT_REMOTES", "alice,bob,carol")
	t.Setenv("PARLIAMENT_ACCEPT_THRESHOLD", "0.75")
	t.Setenv("PARLIAMENT_STRICT_BALLOTS", "true")
	t.Setenv("PARLIAMENT_FETCH_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if len(cfg.Remotes) != 3 || cfg.Remotes[0] != "alice" || cfg.Remotes[2] != "carol" {
		t.Errorf("unexpected remotes: %v", cfg.Remotes)
	}
	if cfg.AcceptThreshold != 0.75 {
		t.Errorf("unexpected threshold: %g", cfg.AcceptThreshold)
	}
	if !cfg.StrictBallots {
		t.Errorf("expected strict ballots enabled")
	}
	if cfg.FetchTimeout != 2*time.Second {
		t.Errorf("unexpected fetch timeout: %s", cfg.FetchTimeout)
	}
}
