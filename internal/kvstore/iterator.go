package kvstore

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Iterator walks a table in key order. Key/Value are only valid until the
// next call to Next, matching goleveldb's own iterator contract.
type Iterator interface {
	Next() bool
	Key() []byte   // table-relative key, prefix stripped
	Value() []byte
	Error() error
	Release()
}

// prefixIterator adapts a goleveldb iterator scoped to one table's key
// prefix, stripping the prefix back off so callers never see it.
type prefixIterator struct {
	it     iterator.Iterator
	prefix []byte
}

func newPrefixIterator(src prefixScanner, table Table, start []byte) *prefixIterator {
	prefix := tablePrefix(table)
	rng := util.BytesPrefix(prefix)
	if len(start) > 0 {
		rng.Start = tableKey(table, start)
	}
	return &prefixIterator{it: src.NewIterator(rng, nil), prefix: prefix}
}

func (p *prefixIterator) Next() bool { return p.it.Next() }

func (p *prefixIterator) Key() []byte {
	return bytes.TrimPrefix(p.it.Key(), p.prefix)
}

func (p *prefixIterator) Value() []byte { return p.it.Value() }
func (p *prefixIterator) Error() error   { return p.it.Error() }
func (p *prefixIterator) Release()       { p.it.Release() }

// mergedIterator presents two prefixIterators (typically a table's v0 and
// v1 epoch generations) as one sorted stream, spec §4.1's "merged
// iterator over (v0, v1) pairs that presents a single sorted view". On a
// key collision (shouldn't happen — an account lives in exactly one
// generation at a time — but the merge is defensive) v1 wins.
type mergedIterator struct {
	a, b       *prefixIterator
	aOK, bOK   bool
	started    bool
	curFromA   bool
}

func newMergedIterator(a, b *prefixIterator) *mergedIterator {
	return &mergedIterator{a: a, b: b}
}

func (m *mergedIterator) Next() bool {
	if !m.started {
		m.started = true
		m.aOK = m.a.Next()
		m.bOK = m.b.Next()
	} else if m.curFromA {
		m.aOK = m.a.Next()
	} else {
		m.bOK = m.b.Next()
	}

	switch {
	case !m.aOK && !m.bOK:
		return false
	case !m.aOK:
		m.curFromA = false
	case !m.bOK:
		m.curFromA = true
	default:
		switch bytes.Compare(m.a.Key(), m.b.Key()) {
		case 0:
			// v1 (b) wins on collision; v0's copy of the key is skipped.
			m.aOK = m.a.Next()
			m.curFromA = false
		case -1:
			m.curFromA = true
		default:
			m.curFromA = false
		}
	}
	return true
}

func (m *mergedIterator) cur() *prefixIterator {
	if m.curFromA {
		return m.a
	}
	return m.b
}

func (m *mergedIterator) Key() []byte   { return m.cur().Key() }
func (m *mergedIterator) Value() []byte { return m.cur().Value() }
func (m *mergedIterator) Error() error {
	if err := m.a.Error(); err != nil {
		return err
	}
	return m.b.Error()
}
func (m *mergedIterator) Release() {
	m.a.Release()
	m.b.Release()
}
