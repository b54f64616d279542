package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caseline/internal/domain"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	if cfg.Workflow.InitialState != domain.StateDraft {
		t.Fatalf("initial state = %s", cfg.Workflow.InitialState)
	}
	if _, ok := cfg.FindTransition("routeToLegal"); !ok {
		t.Fatal("routeToLegal missing from default catalog")
	}
	spec, _ := cfg.FindTransition("routeToLegal")
	if spec.Classification != domain.ClassificationFraud || len(spec.Fanout) != 2 || spec.SLA != "FMR1" {
		t.Fatalf("routeToLegal spec: %+v", spec)
	}
	if cfg.PersistTimeout() <= 0 {
		t.Fatal("expected a persist timeout in the default config")
	}
}

func TestValidateRejectsBadCatalog(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown from-state",
			mutate: func(c *Config) { c.Workflow.Transitions[0].From = "limbo" },
			want:   "unknown from-state",
		},
		{
			name:   "unknown role",
			mutate: func(c *Config) { c.Workflow.Transitions[0].Roles = []string{"wizard"} },
			want:   "unknown role",
		},
		{
			name:   "duplicate name",
			mutate: func(c *Config) { c.Workflow.Transitions[1].Name = c.Workflow.Transitions[0].Name },
			want:   "duplicate transition",
		},
		{
			name:   "unknown classification",
			mutate: func(c *Config) { c.Workflow.Transitions[0].Classification = "maybe_fraud" },
			want:   "unknown classification",
		},
		{
			name:   "fanout to unknown track",
			mutate: func(c *Config) { c.Workflow.Transitions[0].Fanout = []string{"ghost"} },
			want:   "unknown track",
		},
		{
			name:   "sla without obligation",
			mutate: func(c *Config) { c.Workflow.Transitions[0].SLA = "FMR9" },
			want:   "unknown sla obligation",
		},
		{
			name: "edge out of terminal state",
			mutate: func(c *Config) {
				c.Workflow.Transitions[0].From = domain.StateClosed
			},
			want: "terminal state",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Workflow.Transitions) == 0 {
		t.Fatal("empty catalog from default fallback")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "caseline.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cfg.FindTransition("submit"); !ok {
		t.Fatal("submit missing after file load")
	}
}

func TestTransitionsFrom(t *testing.T) {
	cfg := Default()
	edges := cfg.TransitionsFrom(domain.StateFinalAdjudication)
	if len(edges) != 3 {
		t.Fatalf("expected 3 routes out of final_adjudication, got %d", len(edges))
	}
}
