package state

import (
	"sync"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry is either a concrete account or the "known empty" sentinel
// (an LRU mapping from address to account (or 'known
// empty')").
type cacheEntry struct {
	account *types.Account
	empty   bool
}

// blockChange is one canonical block's modified-address set, kept in a
// recency-ordered queue so a cached account can be validated against it.
type blockChange struct {
	hash      common.Hash
	parent    common.Hash
	modified  map[common.Address]struct{}
}

// AccountCache is the shared, cross-block account/code cache component D
// describes: an LRU account cache, an LRU code cache, a bloom of non-empty
// addresses, and a recency-ordered queue of recent canonical block changes
// used to validate whether a cached entry may be returned without
// consulting the trie.
type AccountCache struct {
	mu sync.RWMutex

	accounts *lru.Cache[common.Address, cacheEntry]
	codes    *lru.Cache[common.Hash, []byte]
	bloom    common.Bloom

	// recent holds up to recencyDepth blocks, oldest first.
	recent []blockChange
}

// recencyDepth is the target depth this cache tracks: "evicting the oldest
// entry when the queue reaches a fixed depth (target: 12 blocks)".
const recencyDepth = 12

func NewAccountCache(accountCacheSize, codeCacheSize int) *AccountCache {
	accounts, _ := lru.New[common.Address, cacheEntry](accountCacheSize)
	codes, _ := lru.New[common.Hash, []byte](codeCacheSize)
	return &AccountCache{accounts: accounts, codes: codes}
}

// Get returns a cached account only if the parent hash chain from
// queriedBlock back through recorded block-changes is canonical and addr
// is not marked modified in any intermediate block. On a
// non-canonical ancestor, or if addr was touched along the way, ok is
// false and the caller must consult the trie.
func (c *AccountCache) Get(addr common.Address, queriedBlock common.Hash) (account *types.Account, empty bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.chainIsCanonicalFrom(queriedBlock, addr) {
		return nil, false, false
	}
	entry, found := c.accounts.Get(addr)
	if !found {
		return nil, false, false
	}
	return entry.account, entry.empty, true
}

// chainIsCanonicalFrom walks c.recent from queriedBlock toward the oldest
// recorded block; if queriedBlock isn't found as the head of a recorded
// chain, or addr was modified along the way, it returns false.
func (c *AccountCache) chainIsCanonicalFrom(queriedBlock common.Hash, addr common.Address) bool {
	if len(c.recent) == 0 {
		return true // no recorded history to contradict the cache yet
	}
	cursor := queriedBlock
	seen := 0
	for i := len(c.recent) - 1; i >= 0; i-- {
		bc := c.recent[i]
		if bc.hash != cursor {
			continue
		}
		if _, touched := bc.modified[addr]; touched {
			return false
		}
		cursor = bc.parent
		seen++
	}
	return true
}

// RecordBlock appends a newly committed block's modified-address set and
// evicts the oldest entry once the queue exceeds recencyDepth.
func (c *AccountCache) RecordBlock(hash, parent common.Hash, modified map[common.Address]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, blockChange{hash: hash, parent: parent, modified: modified})
	if len(c.recent) > recencyDepth {
		c.recent = c.recent[len(c.recent)-recencyDepth:]
	}
}

// Set installs an account (or "known empty") into the shared cache; writers
// hold the cache's write lock for this entire call.
func (c *AccountCache) Set(addr common.Address, account *types.Account, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts.Add(addr, cacheEntry{account: account, empty: empty})
	if !empty {
		c.bloom.Add(addr.Bytes())
	}
}

func (c *AccountCache) GetCode(hash common.Hash) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.codes.Get(hash)
}

func (c *AccountCache) SetCode(hash common.Hash, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes.Add(hash, code)
}

// MayBeNonEmpty consults the bloom filter; false is a definitive "never
// written as non-empty", true requires confirmation from the trie (bloom
// filters have false positives, never false negatives).
func (c *AccountCache) MayBeNonEmpty(addr common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bloom.Contains(addr.Bytes())
}
