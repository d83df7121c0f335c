package session

import (
	"testing"
	"time"
)

func TestManagerNewSessionForceTerminatesPriorOnSameDisplay(t *testing.T) {
	sink := &recordingSink{}
	mgr := NewManager(testConfig(), &fakeInitializer{}, buildMatcher, sink)

	first := mgr.NewSession("files", Context{ProviderID: "files"})
	time.Sleep(10 * time.Millisecond)
	if first.State() == StateDead {
		t.Fatalf("first session should be alive before replacement")
	}

	second := mgr.NewSession("files", Context{ProviderID: "files"})
	time.Sleep(20 * time.Millisecond)

	if first.State() != StateDead {
		t.Fatalf("expected prior session force-terminated, got %v", first.State())
	}
	if second.State() == StateDead {
		t.Fatalf("expected new session alive after replacing prior")
	}
	mgr.Terminate(second.ID)
}

func TestManagerShutdownTerminatesAllSessions(t *testing.T) {
	sink := &recordingSink{}
	mgr := NewManager(testConfig(), &fakeInitializer{}, buildMatcher, sink)

	a := mgr.NewSession("files", Context{ProviderID: "files"})
	b := mgr.NewSession("buffers", Context{ProviderID: "buffers"})
	time.Sleep(10 * time.Millisecond)

	mgr.Shutdown()

	if a.State() != StateDead || b.State() != StateDead {
		t.Fatalf("expected both sessions dead after shutdown, got %v %v", a.State(), b.State())
	}
}
