package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersAfterRegister(t *testing.T) {
	_ = Register(prometheus.NewRegistry())
	// Must not panic.
	IncStarted("chromium")
	IncTerminal("chromium", "failed")
	SetActiveRuns(2)
	IncEventDropped()
	IncTransitionDropped()
	IncArtifactUnavailable()
	IncDescriptorUnavailable()
}
