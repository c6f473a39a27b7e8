package tor

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("creates with default timeout", func(t *testing.T) {
		t.Parallel()
		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected %v, got %v", DefaultStartupTimeout, e.startupTimeout)
		}
	})

	t.Run("applies WithStartupTimeout", func(t *testing.T) {
		t.Parallel()
		e := NewEmbeddedTor(WithStartupTimeout(5 * time.Minute))
		if e.startupTimeout != 5*time.Minute {
			t.Errorf("expected 5m, got %v", e.startupTimeout)
		}
	})

	t.Run("ignores non-positive timeout", func(t *testing.T) {
		t.Parallel()
		e := NewEmbeddedTor(WithStartupTimeout(0))
		if e.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected %v, got %v", DefaultStartupTimeout, e.startupTimeout)
		}
	})
}

func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()

	if e.SocksAddr() != "" {
		t.Errorf("expected empty SocksAddr, got %q", e.SocksAddr())
	}
	if e.ControlAddr() != "" {
		t.Errorf("expected empty ControlAddr, got %q", e.ControlAddr())
	}
	if e.IsRunning() {
		t.Error("expected IsRunning to be false")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("expected Stop on unstarted instance to succeed, got %v", err)
	}
	if _, err := e.NewClient(time.Second); !errors.Is(err, ErrEmbeddedNotRunning) {
		t.Errorf("expected ErrEmbeddedNotRunning, got %v", err)
	}
}
