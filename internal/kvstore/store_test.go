package kvstore

import "testing"

func TestPutGetDelete(t *testing.T) {
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	key := []byte("account-1")
	value := []byte("account-info")

	err = store.Update(WriterTesting, func(tx WriteTx) error {
		return tx.Put(TableAccountsV0, key, value)
	})
	if err != nil {
		t.Fatalf("Update(Put): %v", err)
	}

	err = store.View(func(tx Tx) error {
		got, err := tx.Get(TableAccountsV0, key)
		if err != nil {
			return err
		}
		if string(got) != string(value) {
			t.Errorf("want %q, got %q", value, got)
		}
		has, err := tx.Has(TableAccountsV0, key)
		if err != nil {
			return err
		}
		if !has {
			t.Errorf("Has: expected true")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	err = store.Update(WriterTesting, func(tx WriteTx) error {
		return tx.Delete(TableAccountsV0, key)
	})
	if err != nil {
		t.Fatalf("Update(Delete): %v", err)
	}

	err = store.View(func(tx Tx) error {
		has, err := tx.Has(TableAccountsV0, key)
		if err != nil {
			return err
		}
		if has {
			t.Errorf("Has after delete: expected false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View after delete: %v", err)
	}
}

func TestTablesAreIsolated(t *testing.T) {
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	key := []byte("shared-key")

	err = store.Update(WriterTesting, func(tx WriteTx) error {
		return tx.Put(TableAccountsV0, key, []byte("v0-value"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx Tx) error {
		has, err := tx.Has(TableAccountsV1, key)
		if err != nil {
			return err
		}
		if has {
			t.Errorf("same key written to v0 should not be visible in v1's table")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestIteratorScansPrefix(t *testing.T) {
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	err = store.Update(WriterTesting, func(tx WriteTx) error {
		for _, k := range []string{"a", "b", "c"} {
			if err := tx.Put(TableFrontiers, []byte(k), []byte(k+"-value")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var keys []string
	err = store.View(func(tx Tx) error {
		it := tx.Iterator(TableFrontiers, nil)
		defer it.Release()
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		return it.Error()
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
}

func TestCount(t *testing.T) {
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	err = store.Update(WriterTesting, func(tx WriteTx) error {
		return tx.Put(TableMeta, []byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx Tx) error {
		n, err := tx.Count(TableMeta)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("expected count 1, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
