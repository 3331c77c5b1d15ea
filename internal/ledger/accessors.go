package ledger

import (
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

func accountTable(e Epoch) kvstore.Table {
	if e == latticetypes.Epoch1 {
		return kvstore.TableAccountsV1
	}
	return kvstore.TableAccountsV0
}

func pendingTable(e Epoch) kvstore.Table {
	if e == latticetypes.Epoch1 {
		return kvstore.TablePendingV1
	}
	return kvstore.TablePendingV0
}

// getAccountInfo checks the v1 table first (an upgraded account never
// reverts to v0) then v0.
func getAccountInfo(tx kvstore.Tx, account Account) (AccountInfo, bool, error) {
	for _, table := range [...]kvstore.Table{kvstore.TableAccountsV1, kvstore.TableAccountsV0} {
		raw, err := tx.Get(table, account[:])
		if err != nil {
			if kvstore.IsNotFound(err) {
				continue
			}
			return AccountInfo{}, false, err
		}
		info, err := decodeAccountInfo(raw)
		if err != nil {
			return AccountInfo{}, false, err
		}
		return info, true, nil
	}
	return AccountInfo{}, false, nil
}

// putAccountInfo writes info under the table matching its epoch,
// deleting any stale row in the other generation's table (an account
// moves from v0 to v1 exactly once, on its epoch-upgrade block).
func putAccountInfo(tx kvstore.WriteTx, account Account, info AccountInfo) error {
	other := kvstore.TableAccountsV0
	table := accountTable(info.Epoch)
	if table == kvstore.TableAccountsV0 {
		other = kvstore.TableAccountsV1
	}
	if err := tx.Delete(other, account[:]); err != nil {
		return err
	}
	return tx.Put(table, account[:], info.encode())
}

func deleteAccountInfo(tx kvstore.WriteTx, account Account) error {
	if err := tx.Delete(kvstore.TableAccountsV0, account[:]); err != nil {
		return err
	}
	return tx.Delete(kvstore.TableAccountsV1, account[:])
}

func getPending(tx kvstore.Tx, key PendingKey) (PendingEntry, bool, error) {
	for _, table := range [...]kvstore.Table{kvstore.TablePendingV1, kvstore.TablePendingV0} {
		raw, err := tx.Get(table, key.encode())
		if err != nil {
			if kvstore.IsNotFound(err) {
				continue
			}
			return PendingEntry{}, false, err
		}
		e, err := decodePendingEntry(raw)
		if err != nil {
			return PendingEntry{}, false, err
		}
		return e, true, nil
	}
	return PendingEntry{}, false, nil
}

func putPending(tx kvstore.WriteTx, key PendingKey, entry PendingEntry) error {
	return tx.Put(pendingTable(entry.Epoch), key.encode(), entry.encode())
}

func deletePending(tx kvstore.WriteTx, key PendingKey) error {
	if err := tx.Delete(kvstore.TablePendingV0, key.encode()); err != nil {
		return err
	}
	return tx.Delete(kvstore.TablePendingV1, key.encode())
}

func getFrontierAccount(tx kvstore.Tx, head Hash) (Account, bool, error) {
	raw, err := tx.Get(kvstore.TableFrontiers, head[:])
	if err != nil {
		if kvstore.IsNotFound(err) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}
	acc, err := latticetypes.AccountFromBytes(raw)
	if err != nil {
		return Account{}, false, err
	}
	return acc, true, nil
}

func putFrontier(tx kvstore.WriteTx, head Hash, account Account) error {
	return tx.Put(kvstore.TableFrontiers, head[:], account[:])
}

func deleteFrontier(tx kvstore.WriteTx, head Hash) error {
	return tx.Delete(kvstore.TableFrontiers, head[:])
}

func getConfirmationHeight(tx kvstore.Tx, account Account) (ConfirmationHeightInfo, error) {
	raw, err := tx.Get(kvstore.TableConfirmationHeight, account[:])
	if err != nil {
		if kvstore.IsNotFound(err) {
			return ConfirmationHeightInfo{}, nil
		}
		return ConfirmationHeightInfo{}, err
	}
	return decodeConfirmationHeightInfo(raw)
}

func putConfirmationHeight(tx kvstore.WriteTx, account Account, info ConfirmationHeightInfo) error {
	return tx.Put(kvstore.TableConfirmationHeight, account[:], info.encode())
}
