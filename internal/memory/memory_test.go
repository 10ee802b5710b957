package memory

import (
	"runtime/debug"
	"testing"
)

func newTestMonitor(alloc *uint64) *Monitor {
	m := NewMonitor(&Options{Limit: 1000})
	m.readAlloc = func() uint64 { return *alloc }
	return m
}

func TestMonitorPressureHysteresis(t *testing.T) {
	var alloc uint64
	m := newTestMonitor(&alloc)

	steps := []struct {
		alloc uint64
		want  bool
	}{
		{500, false},
		{860, true},
		{800, true}, // between the marks: still held
		{690, false},
		{800, false},
	}
	for _, s := range steps {
		alloc = s.alloc
		m.sample()
		if got := m.UnderPressure(); got != s.want {
			t.Errorf("alloc %d: UnderPressure() = %v, want %v", s.alloc, got, s.want)
		}
	}
	if got := m.Usage(); got != 0.8 {
		t.Errorf("Usage() = %v, want 0.8", got)
	}
}

func TestMonitorStopTwice(t *testing.T) {
	var alloc uint64
	m := newTestMonitor(&alloc)
	m.Start()
	m.Stop()
	m.Stop()
}

func TestMonitorWithoutLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	m := NewMonitor(nil)
	m.opts.Limit = 0
	m.sample()

	if m.Enabled() || m.UnderPressure() {
		t.Error("monitor without a limit reports pressure")
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", DefaultRatio},
		{"0.75", 0.75},
		{"1", 1},
		{"0", DefaultRatio},
		{"1.5", DefaultRatio},
		{"lots", DefaultRatio},
	}
	for _, tt := range tests {
		if got := parseRatio(tt.in); got != tt.want {
			t.Errorf("parseRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigureFromEnvWithoutLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	if got := ConfigureFromEnv(); got.Configured || got.Source != "none" {
		t.Errorf("ConfigureFromEnv() = %+v, want unconfigured", got)
	}
}

func TestConfigureFromEnvInvalidLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "-5")

	if got := ConfigureFromEnv(); got.Configured {
		t.Errorf("ConfigureFromEnv() = %+v, want unconfigured", got)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")
	t.Setenv("MEMORY_RATIO", "0.5")

	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })

	got := ConfigureFromEnv()
	if !got.Configured || got.Source != "MEMORY_LIMIT" {
		t.Fatalf("ConfigureFromEnv() = %+v, want configured from MEMORY_LIMIT", got)
	}
	if got.GoMemLimit != 536870912 {
		t.Errorf("GoMemLimit = %d, want 536870912", got.GoMemLimit)
	}
	if limit := debug.SetMemoryLimit(-1); limit != got.GoMemLimit {
		t.Errorf("runtime limit = %d, want %d", limit, got.GoMemLimit)
	}
}
