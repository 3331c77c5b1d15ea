package netp

import (
	"net"
	"testing"
	"time"
)

func TestTableAddGetRemove(t *testing.T) {
	tbl := NewTable(Options{})
	ch := &Channel{Endpoint: &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 7075}}

	tbl.Add("203.0.113.1:7075", ch)
	got, ok := tbl.Get("203.0.113.1:7075")
	if !ok || got != ch {
		t.Fatalf("expected to get back the added channel")
	}

	tbl.Remove("203.0.113.1:7075")
	if _, ok := tbl.Get("203.0.113.1:7075"); ok {
		t.Fatalf("expected channel to be gone after Remove")
	}
}

func TestTableRealtimeFiltersByState(t *testing.T) {
	tbl := NewTable(Options{})
	undefined := &Channel{}
	realtime := &Channel{}
	realtime.Promote([32]byte{1}, 19)

	tbl.Add("undefined", undefined)
	tbl.Add("realtime", realtime)

	rt := tbl.Realtime()
	if len(rt) != 1 || rt[0] != realtime {
		t.Fatalf("expected exactly the promoted channel, got %d channels", len(rt))
	}
}

func TestTableAllowedRejectsPrivateByDefault(t *testing.T) {
	tbl := NewTable(Options{})
	if tbl.Allowed(net.ParseIP("192.168.1.1")) {
		t.Fatalf("private address should be rejected by default")
	}
	if !tbl.Allowed(net.ParseIP("203.0.113.1")) {
		t.Fatalf("public address should be allowed by default")
	}

	allowPrivate := NewTable(Options{AllowPrivate: true})
	if !allowPrivate.Allowed(net.ParseIP("192.168.1.1")) {
		t.Fatalf("private address should be allowed when AllowPrivate is set")
	}
}

func TestTableCloseIdleRemovesStaleChannels(t *testing.T) {
	tbl := NewTable(Options{})
	stale := &Channel{LastPacketReceived: time.Now().Add(-time.Hour)}
	fresh := &Channel{LastPacketReceived: time.Now()}

	tbl.Add("stale", stale)
	tbl.Add("fresh", fresh)

	n := tbl.CloseIdle(time.Minute)
	if n != 1 {
		t.Fatalf("expected 1 idle channel closed, got %d", n)
	}
	if _, ok := tbl.Get("stale"); ok {
		t.Fatalf("stale channel should have been removed")
	}
	if _, ok := tbl.Get("fresh"); !ok {
		t.Fatalf("fresh channel should still be present")
	}
}

func TestBeginEndProbe(t *testing.T) {
	tbl := NewTable(Options{})
	if !tbl.BeginProbe("peer:1") {
		t.Fatalf("first BeginProbe should succeed")
	}
	if tbl.BeginProbe("peer:1") {
		t.Fatalf("second concurrent BeginProbe for the same endpoint should fail")
	}
	tbl.EndProbe("peer:1")
	if !tbl.BeginProbe("peer:1") {
		t.Fatalf("BeginProbe should succeed again after EndProbe")
	}
}
