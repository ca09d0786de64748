package registry

import (
	"strings"
	"testing"
	"time"

	"stackd/internal/config"
)

func svcConfig(name string, deps ...string) config.ServiceConfig {
	return config.ServiceConfig{
		Name:      name,
		DependsOn: deps,
		Command:   []string{"/usr/local/bin/" + name},
		Probe:     config.ProbeConfig{URL: "http://127.0.0.1:8000/health"},
	}
}

func loadable(services ...config.ServiceConfig) config.Config {
	cfg := config.Config{Services: services}
	cfg.ApplyDefaults()
	return cfg
}

func TestLoadValid(t *testing.T) {
	reg, err := Load(loadable(
		svcConfig("storage"),
		svcConfig("gpu"),
		svcConfig("model-a", "storage", "gpu"),
	))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 services, got %d", reg.Len())
	}
	ma, ok := reg.Lookup("model-a")
	if !ok {
		t.Fatal("model-a not found")
	}
	if ma.Index != 2 {
		t.Fatalf("declaration index = %d", ma.Index)
	}
	if ma.Probe.Timeout != 5*time.Second {
		t.Fatalf("probe timeout = %v", ma.Probe.Timeout)
	}
	if got := reg.Services(); got[0].Name != "storage" || got[2].Name != "model-a" {
		t.Fatalf("declaration order not preserved: %v", got)
	}
}

func TestLoadCollectsAllViolations(t *testing.T) {
	cfg := loadable(
		config.ServiceConfig{ // missing name
			Command: []string{"x"},
			Probe:   config.ProbeConfig{URL: "http://localhost/health"},
		},
		config.ServiceConfig{ // missing command and probe url
			Name: "gpu",
		},
		svcConfig("model-a", "nonexistent"),
		svcConfig("model-a"), // duplicate
	)
	// invalid restart bounds on a service that is otherwise fine
	bad := svcConfig("model-b")
	bad.Restart.MaxAttempts = -1
	cfg.Services = append(cfg.Services, bad)

	_, err := Load(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	want := []string{
		"name is required",
		`service "gpu": command is required`,
		`service "gpu": probe url is required`,
		`unknown dependency "nonexistent"`,
		`service "model-a": duplicate name`,
		"max_attempts must be >= 1",
	}
	joined := strings.Join(ve.Violations, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing violation %q in:\n%s", w, joined)
		}
	}
	if !IsValidationError(err) {
		t.Fatal("IsValidationError should match")
	}
}

func TestLoadSelfAndDuplicateDependency(t *testing.T) {
	_, err := Load(loadable(
		svcConfig("storage", "storage"),
		svcConfig("model-a", "storage", "storage"),
	))
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	joined := strings.Join(ve.Violations, "\n")
	if !strings.Contains(joined, "depends on itself") {
		t.Errorf("missing self-dependency violation: %s", joined)
	}
	if !strings.Contains(joined, `duplicate dependency "storage"`) {
		t.Errorf("missing duplicate dependency violation: %s", joined)
	}
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(config.Config{})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
