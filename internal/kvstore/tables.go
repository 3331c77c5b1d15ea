package kvstore

// Table names the logical tables the ledger and bootstrap subsystems
// require (spec §4.1). Each is implemented as a key prefix within the
// single underlying leveldb.DB, the way go-ethereum's core/rawdb layers
// many logical tables over one physical ethdb.KeyValueStore.
type Table string

const (
	TableAccountsV0        Table = "accounts_v0"
	TableAccountsV1        Table = "accounts_v1"
	TablePendingV0         Table = "pending_v0"
	TablePendingV1         Table = "pending_v1"
	TableSendBlocks        Table = "send_blocks"
	TableReceiveBlocks     Table = "receive_blocks"
	TableOpenBlocks        Table = "open_blocks"
	TableChangeBlocks      Table = "change_blocks"
	TableStateBlocksV0     Table = "state_blocks_v0"
	TableStateBlocksV1     Table = "state_blocks_v1"
	TableFrontiers         Table = "frontiers"
	TableUnchecked         Table = "unchecked"
	TableVote              Table = "vote"
	TableOnlineWeight      Table = "online_weight"
	TablePeers             Table = "peers"
	TableConfirmationHeight Table = "confirmation_height"
	TableMeta              Table = "meta"

	// TableBlockIndex is not in spec §4.1's table list; it is a small
	// ledger-internal secondary index (hash -> which per-type table and
	// epoch holds the row) so a lookup-by-hash need not probe six
	// tables. See DESIGN.md.
	TableBlockIndex Table = "block_index"
)

// allTables enumerates every table for iteration/Drop/Count bookkeeping.
var allTables = []Table{
	TableAccountsV0, TableAccountsV1,
	TablePendingV0, TablePendingV1,
	TableSendBlocks, TableReceiveBlocks, TableOpenBlocks, TableChangeBlocks,
	TableStateBlocksV0, TableStateBlocksV1,
	TableFrontiers, TableUnchecked, TableVote, TableOnlineWeight,
	TablePeers, TableConfirmationHeight, TableMeta, TableBlockIndex,
}

// tableKey prefixes key with the table's byte tag followed by a
// separator, so that every table's keyspace sorts contiguously and
// independently within the shared physical keyspace.
func tableKey(t Table, key []byte) []byte {
	out := make([]byte, 0, len(t)+1+len(key))
	out = append(out, t...)
	out = append(out, 0) // NUL separator: table names contain no NUL
	out = append(out, key...)
	return out
}

func tablePrefix(t Table) []byte {
	out := make([]byte, 0, len(t)+1)
	out = append(out, t...)
	out = append(out, 0)
	return out
}
