package rbridgectl

import (
	"context"
	"net"
	"testing"

	"github.com/go-trill/rbridge"
	"github.com/go-trill/rbridge/internal/telemetry"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	bridge := rbridge.NewBridge(mustMAC("02:00:00:00:00:01"), nil)
	ctl, err := New(bridge, Config{HopCount: 21})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := ctl.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ctl
}

func TestControllerEnableDisable(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	state, err := ctl.Enable(ctx)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !state.Enabled() {
		t.Fatal("expected state.Enabled() == true")
	}

	ctl.Disable(ctx)
	if state.Enabled() {
		t.Fatal("expected state.Enabled() == false after Disable")
	}
}

func TestControllerSetNicknameAndTreeRoot(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	state, err := ctl.Enable(ctx)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if err := ctl.SetLocalNickname(ctx, state, 0x0010); err != nil {
		t.Fatalf("SetLocalNickname: %v", err)
	}
	if state.LocalNick() != 0x0010 {
		t.Fatalf("LocalNick() = %v, want 0x0010", state.LocalNick())
	}

	if err := ctl.SetTreeRoot(ctx, state, 0x0020); err != nil {
		t.Fatalf("SetTreeRoot: %v", err)
	}
	if state.TreeRoot() != 0x0020 {
		t.Fatalf("TreeRoot() = %v, want 0x0020", state.TreeRoot())
	}
}

func TestControllerReconcileNeighbors(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	state, err := ctl.Enable(ctx)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}

	desired := []NeighborSpec{
		{Nickname: 0x0011, Info: rbridge.NeighborInfo{AdjSNPA: mustMAC("02:00:00:00:00:02")}},
		{Nickname: 0x0012, Info: rbridge.NeighborInfo{AdjSNPA: mustMAC("02:00:00:00:00:03")}},
	}
	if err := ctl.ReconcileNeighbors(ctx, state, desired); err != nil {
		t.Fatalf("ReconcileNeighbors: %v", err)
	}

	for _, spec := range desired {
		h := state.Neighbors().Lookup(spec.Nickname)
		if !h.Valid() {
			t.Fatalf("nickname %v not installed", spec.Nickname)
		}
		h.Release()
	}

	if err := ctl.EvictNeighbor(ctx, state, 0x0011); err != nil {
		t.Fatalf("EvictNeighbor: %v", err)
	}
	if state.Neighbors().Lookup(0x0011).Valid() {
		t.Fatal("expected nickname 0x0011 to be evicted")
	}
}

func TestControllerTracingEnabled(t *testing.T) {
	bridge := rbridge.NewBridge(mustMAC("02:00:00:00:00:01"), nil)
	ctl, err := New(bridge, Config{
		HopCount: 21,
		Tracing:  telemetry.Config{Enabled: true, ServiceName: "rbridgectl-test"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctl.Close()

	if _, err := ctl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
}
