// Package kv is the keyed store adapter: seven logical
// columns over a column-qualified key/value store with atomic batches and
// write-through caches. Column and table-config shape is grounded on
// erigon-lib/kv/tables.go's TableCfg/ChaindataTables declaration style,
// trimmed to the columns this chain's storage layer needs — the rest of that file's
// temporal/domain/history table machinery has no counterpart in scope.
package kv

// The logical columns the on-disk layout enumerates.
const (
	// State: trie nodes, key = content hash, value = encoded node.
	State = "State"
	// Headers: height->hash index and hash->header.
	Headers = "Headers"
	// Bodies: block bodies, key = hash.
	Bodies = "Bodies"
	// Extras: tx locator, receipts array per block, hash index.
	Extras = "Extras"
	// Traces: execution traces.
	Traces = "Traces"
	// AccountBloom: account_hash_count + numeric-keyed 64-bit segments.
	AccountBloom = "AccountBloom"
	// NodeInfo: node-local persistent info.
	NodeInfo = "NodeInfo"
)

// TableCfgItem mirrors erigon-lib's per-table configuration entry, trimmed
// to the one flag this store's columns actually need (whether the column
// holds list-valued entries).
type TableCfgItem struct {
	Name     string
	IsDupSrt bool // duplicate/list-valued entries (receipts-per-block, etc.)
}

type TableCfg map[string]TableCfgItem

// ChaindataTables is this repo's analogue of erigon-lib's
// kv.ChaindataTables: the fixed table-configuration map every store opens
// with.
var ChaindataTables = TableCfg{
	State:        {Name: State},
	Headers:      {Name: Headers},
	Bodies:       {Name: Bodies},
	Extras:       {Name: Extras, IsDupSrt: true},
	Traces:       {Name: Traces},
	AccountBloom: {Name: AccountBloom},
	NodeInfo:     {Name: NodeInfo},
}
