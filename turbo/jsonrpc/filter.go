package jsonrpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/rpc"
)

// LogFilterCriteria is get_logs/new_filter's matching predicate: an
// inclusive height range, an address allowlist (empty means any), and a
// positional topic allowlist (empty position means any, like eth_getLogs).
// Modeled on erigon's eth/filters.FilterCriteria shape (turbo/jsonrpc's
// eth_filters_test.go in the wider corpus exercises the same
// NewFilter/NewBlockFilter/UninstallFilter/GetFilterChanges/GetFilterLogs
// lifecycle this file reproduces).
type LogFilterCriteria struct {
	FromHeight uint64
	ToHeight   uint64
	Addresses  []common.Address
	Topics     [][]common.Hash
}

func (c *LogFilterCriteria) matchesHeader(header *types.Header) bool {
	if len(c.Addresses) > 0 {
		ok := false
		for _, a := range c.Addresses {
			if header.LogBloom.Contains(a.Bytes()) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, position := range c.Topics {
		if len(position) == 0 {
			continue
		}
		ok := false
		for _, t := range position {
			if header.LogBloom.Contains(t.Bytes()) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *LogFilterCriteria) matchesLog(l *types.LogEntry) bool {
	if len(c.Addresses) > 0 {
		found := false
		for _, a := range c.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, position := range c.Topics {
		if len(position) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range position {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type logView struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockHash        string   `json:"blockHash"`
	BlockNumber      string   `json:"blockNumber"`
	TransactionHash  string   `json:"transactionHash"`
	LogIndex         string   `json:"logIndex"`
	TransactionIndex string   `json:"transactionIndex"`
}

func newLogView(l *types.LogEntry, header *types.Header, txHash common.Hash, txIndex, logIndex int) *logView {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t.String()
	}
	return &logView{
		Address:          l.Address.String(),
		Topics:           topics,
		Data:             rpc.Data(l.Data),
		BlockHash:        header.Hash().String(),
		BlockNumber:      rpc.Quantity(header.Height),
		TransactionHash:  txHash.String(),
		LogIndex:         rpc.Quantity(uint64(logIndex)),
		TransactionIndex: rpc.Quantity(uint64(txIndex)),
	}
}

// scanLogs walks [crit.FromHeight, crit.ToHeight] inclusive, skipping any
// block whose header bloom can't possibly match, and returns every
// matching log view in block/transaction/log order.
func scanLogs(b Backend, crit LogFilterCriteria) ([]*logView, error) {
	var out []*logView
	for h := crit.FromHeight; h <= crit.ToHeight; h++ {
		header, ok, err := b.HeaderByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !crit.matchesHeader(header) {
			continue
		}
		body, err := b.BodyByHash(header.Hash())
		if err != nil {
			return nil, err
		}
		receipts, err := b.ReceiptsByHash(header.Hash())
		if err != nil {
			return nil, err
		}
		logIndex := 0
		for txIndex, r := range receipts {
			var txHash common.Hash
			if txIndex < len(body) {
				txHash = body[txIndex].Hash()
			} else {
				txHash = r.TxHash
			}
			for _, l := range r.Logs {
				if crit.matchesLog(l) {
					out = append(out, newLogView(l, header, txHash, txIndex, logIndex))
				}
				logIndex++
			}
		}
	}
	return out, nil
}

type filterKind uint8

const (
	filterKindLog filterKind = iota
	filterKindBlock
)

type filter struct {
	kind       filterKind
	criteria   LogFilterCriteria
	lastPolled uint64
}

// FilterManager is the in-memory registry new_filter/new_block_filter
// install into and get_filter_changes/get_filter_logs/uninstall_filter
// operate on. There is no persistence and no cross-process sharing: a
// restart drops every installed filter, matching this repo's single-node
// RPC surface.
type FilterManager struct {
	mu      sync.Mutex
	next    atomic.Uint64
	filters map[string]*filter
}

func NewFilterManager() *FilterManager {
	return &FilterManager{filters: make(map[string]*filter)}
}

func (m *FilterManager) install(f *filter) string {
	id := fmt.Sprintf("0x%x", m.next.Add(1))
	m.mu.Lock()
	m.filters[id] = f
	m.mu.Unlock()
	return id
}

func (m *FilterManager) NewLogFilter(crit LogFilterCriteria, currentHeight uint64) string {
	return m.install(&filter{kind: filterKindLog, criteria: crit, lastPolled: currentHeight})
}

func (m *FilterManager) NewBlockFilter(currentHeight uint64) string {
	return m.install(&filter{kind: filterKindBlock, lastPolled: currentHeight})
}

func (m *FilterManager) Uninstall(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.filters[id]; !ok {
		return false
	}
	delete(m.filters, id)
	return true
}

var errUnknownFilter = fmt.Errorf("jsonrpc: unknown filter id")

// Changes returns what's new since the filter's last poll: block hashes
// for a block filter, matching log views for a log filter, and advances
// the filter's cursor to currentHeight either way.
func (m *FilterManager) Changes(b Backend, id string, currentHeight uint64) (interface{}, error) {
	m.mu.Lock()
	f, ok := m.filters[id]
	if !ok {
		m.mu.Unlock()
		return nil, errUnknownFilter
	}
	from := f.lastPolled + 1
	f.lastPolled = currentHeight
	kind := f.kind
	crit := f.criteria
	m.mu.Unlock()

	if from > currentHeight {
		if kind == filterKindBlock {
			return []string{}, nil
		}
		return []*logView{}, nil
	}

	if kind == filterKindBlock {
		hashes := make([]string, 0, currentHeight-from+1)
		for h := from; h <= currentHeight; h++ {
			header, ok, err := b.HeaderByHeight(h)
			if err != nil {
				return nil, err
			}
			if ok {
				hashes = append(hashes, header.Hash().String())
			}
		}
		return hashes, nil
	}

	crit.FromHeight, crit.ToHeight = from, currentHeight
	return scanLogs(b, crit)
}

// Logs returns every match over the filter's full declared range
// (get_filter_logs), independent of polling cursor state.
func (m *FilterManager) Logs(b Backend, id string) ([]*logView, error) {
	m.mu.Lock()
	f, ok := m.filters[id]
	if !ok {
		m.mu.Unlock()
		return nil, errUnknownFilter
	}
	crit := f.criteria
	kind := f.kind
	m.mu.Unlock()
	if kind != filterKindLog {
		return nil, fmt.Errorf("jsonrpc: filter %s is not a log filter", id)
	}
	return scanLogs(b, crit)
}
