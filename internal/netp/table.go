package netp

import (
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	mapset "github.com/deckarep/golang-set/v2"
)

// Table is the channel set of spec §4.8: a map of live channels keyed by
// endpoint, plus a bounded LRU of recently-seen candidate peers and a set
// of endpoints under active probing.
type Table struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	candidates *lru.Cache // endpoint string -> time.Time last seen
	probing    mapset.Set[string]

	allowLoopback bool
	allowPrivate  bool
	allowMulti    bool
}

// Options controls which reserved address ranges are admitted (spec
// §4.8: "reserved address ranges are rejected unless explicitly
// allowed").
type Options struct {
	AllowLoopback bool
	AllowPrivate  bool
	AllowMulticast bool
	CandidateCap  int
}

func NewTable(opts Options) *Table {
	cap := opts.CandidateCap
	if cap <= 0 {
		cap = 4096
	}
	cache, _ := lru.New(cap)
	return &Table{
		channels:      make(map[string]*Channel),
		candidates:    cache,
		probing:       mapset.NewSet[string](),
		allowLoopback: opts.AllowLoopback,
		allowPrivate:  opts.AllowPrivate,
		allowMulti:    opts.AllowMulticast,
	}
}

// Allowed reports whether ip is eligible to become a peer under this
// table's reserved-range policy.
func (t *Table) Allowed(ip net.IP) bool {
	if ip.IsLoopback() {
		return t.allowLoopback
	}
	if ip.IsMulticast() {
		return t.allowMulti
	}
	if isPrivate(ip) {
		return t.allowPrivate
	}
	return true
}

// isPrivate reports RFC1918 (and RFC4193 ULA for v6) membership.
func isPrivate(ip net.IP) bool {
	for _, cidr := range []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(ip) {
			return true
		}
	}
	return false
}

// NoteCandidate records a peer observed via keepalive, pending a probe
// before it is admitted to the live channel set.
func (t *Table) NoteCandidate(endpoint string) {
	t.candidates.Add(endpoint, time.Now())
}

// BeginProbe marks endpoint as under active probing, returning false if
// it is already being probed.
func (t *Table) BeginProbe(endpoint string) bool {
	return t.probing.Add(endpoint)
}

func (t *Table) EndProbe(endpoint string) {
	t.probing.Remove(endpoint)
}

func (t *Table) Add(endpoint string, ch *Channel) {
	t.mu.Lock()
	t.channels[endpoint] = ch
	t.mu.Unlock()
}

func (t *Table) Get(endpoint string) (*Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.channels[endpoint]
	return ch, ok
}

func (t *Table) Remove(endpoint string) {
	t.mu.Lock()
	delete(t.channels, endpoint)
	t.mu.Unlock()
}

// Realtime returns every channel that has completed the handshake.
func (t *Table) Realtime() []*Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		if ch.IsRealtime() {
			out = append(out, ch)
		}
	}
	return out
}

// CloseIdle closes and removes every channel idle longer than max.
func (t *Table) CloseIdle(max time.Duration) int {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for ep, ch := range t.channels {
		if ch.IdleFor(now) > max {
			ch.Close()
			delete(t.channels, ep)
			n++
		}
	}
	return n
}
