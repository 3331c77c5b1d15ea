package latticemetrics

import "testing"

func TestCounterIsSharedAcrossCalls(t *testing.T) {
	name := "test/counter_shared"
	Counter(name).Inc(1)
	Counter(name).Inc(2)
	if got := Counter(name).Count(); got != 3 {
		t.Fatalf("want 3, got %d", got)
	}
}

func TestGaugeUpdate(t *testing.T) {
	name := "test/gauge"
	Gauge(name).Update(5)
	if got := Gauge(name).Value(); got != 5 {
		t.Fatalf("want 5, got %d", got)
	}
	Gauge(name).Update(-1)
	if got := Gauge(name).Value(); got != -1 {
		t.Fatalf("want -1, got %d", got)
	}
}

func TestMeterMarkAccumulates(t *testing.T) {
	name := "test/meter"
	Meter(name).Mark(1)
	Meter(name).Mark(1)
	if got := Meter(name).Count(); got != 2 {
		t.Fatalf("want 2, got %d", got)
	}
}

func TestTimerRecordsUpdates(t *testing.T) {
	name := "test/timer"
	before := Timer(name).Count()
	Timer(name).Update(0)
	if got := Timer(name).Count(); got != before+1 {
		t.Fatalf("want %d, got %d", before+1, got)
	}
}

func TestRegistryContainsRegisteredMetrics(t *testing.T) {
	name := "test/registry_presence"
	Counter(name)
	found := false
	Registry().Each(func(n string, _ any) {
		if n == name {
			found = true
		}
	})
	if !found {
		t.Fatalf("expected %q to be present in Registry()", name)
	}
}
