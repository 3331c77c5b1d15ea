// Package latticeevent implements the Feed/Subscription observer pattern
// used throughout the node (confirmation-height cementation, bootstrap
// attempt start/stop, block-processor fork results) in place of the original
// design's callback-chained signal/slot graph (spec §9 redesign note):
// subscribers register a typed channel and receive a Subscription they
// cancel to unsubscribe. Modeled on go-ethereum's event.Feed.
package latticeevent

import (
	"errors"
	"reflect"
	"sync"
)

// ErrTypeMismatch is returned by Feed.Send when the payload type doesn't
// match the type established by the Feed's first subscriber.
var ErrTypeMismatch = errors.New("latticeevent: send on Feed mismatches subscribed type")

// Subscription represents a Feed subscription; Unsubscribe stops delivery
// and closes the Err channel.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

type feedSub struct {
	feed    *Feed
	channel reflect.Value
	errC    chan error
	once    sync.Once
}

func (s *feedSub) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.errC)
	})
}

func (s *feedSub) Err() <-chan error { return s.errC }

// Feed implements one-to-many delivery of a typed value. The zero Feed is
// ready to use. A Feed must not be copied after first use.
type Feed struct {
	mu    sync.Mutex
	typ   reflect.Type
	subs  []*feedSub
}

// Subscribe registers channel (which must be a chan T for some T) to
// receive values sent on the feed.
func (f *Feed) Subscribe(channel any) Subscription {
	chanVal := reflect.ValueOf(channel)
	chanType := chanVal.Type()
	if chanType.Kind() != reflect.Chan || chanType.ChanDir()&reflect.SendDir == 0 {
		panic("latticeevent: Subscribe argument must be a writable channel")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.typ == nil {
		f.typ = chanType.Elem()
	} else if f.typ != chanType.Elem() {
		panic("latticeevent: Subscribe called with mismatched channel type")
	}
	sub := &feedSub{feed: f, channel: chanVal, errC: make(chan error, 1)}
	f.subs = append(f.subs, sub)
	return sub
}

func (f *Feed) remove(sub *feedSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

// Send delivers value to every current subscriber, blocking until each
// has received it or been unsubscribed. It returns the number of
// subscribers the value was sent to.
func (f *Feed) Send(value any) (int, error) {
	rvalue := reflect.ValueOf(value)

	f.mu.Lock()
	if f.typ != nil && f.typ != rvalue.Type() {
		f.mu.Unlock()
		return 0, ErrTypeMismatch
	}
	subs := append([]*feedSub{}, f.subs...)
	f.mu.Unlock()

	sent := 0
	for _, sub := range subs {
		chosen, _, _ := reflect.Select([]reflect.SelectCase{
			{Dir: reflect.SelectSend, Chan: sub.channel, Send: rvalue},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.errC)},
		})
		if chosen == 0 {
			sent++
		}
	}
	return sent, nil
}
