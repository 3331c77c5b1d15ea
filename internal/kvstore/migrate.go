package kvstore

import "encoding/binary"

// CurrentSchemaVersion is the schema version this binary expects. Bump it
// and add a step to Migrations when a table layout changes.
const CurrentSchemaVersion uint32 = 1

// metaVersionKey is key 1 under the meta table, a 32-byte big-endian
// integer per spec §6 ("Schema version is written at meta[key=1] as a
// 32-byte big-endian integer in the least-significant quadword").
var metaVersionKey = []byte{1}

const metaVersionWidth = 32

func encodeVersion(v uint32) []byte {
	buf := make([]byte, metaVersionWidth)
	binary.BigEndian.PutUint32(buf[metaVersionWidth-4:], v)
	return buf
}

func decodeVersion(b []byte) uint32 {
	if len(b) != metaVersionWidth {
		return 0
	}
	return binary.BigEndian.Uint32(b[metaVersionWidth-4:])
}

// MigrationFunc upgrades the store from one schema version to the next,
// running entirely inside the write transaction handed to it.
type MigrationFunc func(tx WriteTx) error

// Migrations is keyed by the version a step upgrades *from*.
var Migrations = map[uint32]MigrationFunc{
	// 0 -> 1: nothing to transform; version 1 is this module's first
	// schema. Future migrations are added here as the schema evolves.
}

// EnsureSchema reads the stored schema version and, if it is behind
// CurrentSchemaVersion, runs every migration step in order under a single
// write transaction before returning, per spec §4.1's upgrade path. A
// fresh store (no meta row yet) is stamped at CurrentSchemaVersion
// without running migrations.
func (s *Store) EnsureSchema() error {
	var stored uint32
	var found bool
	if err := s.View(func(tx Tx) error {
		v, err := tx.Get(TableMeta, metaVersionKey)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		stored = decodeVersion(v)
		found = true
		return nil
	}); err != nil {
		return err
	}

	if !found {
		return s.Update(WriterTesting, func(tx WriteTx) error {
			return tx.Put(TableMeta, metaVersionKey, encodeVersion(CurrentSchemaVersion))
		})
	}

	if stored >= CurrentSchemaVersion {
		return nil
	}

	return s.Update(WriterTesting, func(tx WriteTx) error {
		for v := stored; v < CurrentSchemaVersion; v++ {
			step, ok := Migrations[v]
			if !ok {
				continue
			}
			if err := step(tx); err != nil {
				return err
			}
		}
		return tx.Put(TableMeta, metaVersionKey, encodeVersion(CurrentSchemaVersion))
	})
}
