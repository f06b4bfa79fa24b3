// Package reference implements GroveDB's reference-following: resolving a
// Reference element's form to an absolute path, chasing reference chains
// (Reference -> Reference -> ... -> terminal element) with cycle detection
// and a hop budget, and caching resolved targets.
//
// Grounded on cache/memory.Cache (an LRU of hash -> decoded value
// wrapped in a small mutex-guarded struct) for the resolved-target
// cache shape, and on cache.Cache's own Get/Put/Delete/Clear surface.
package reference

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/groveerr"
)

// pathKey is a comparable flattening of (path, key), suitable as an LRU
// cache key — [][]byte is not itself comparable.
type pathKey string

func makeKey(path [][]byte, key []byte) pathKey {
	buf := make([]byte, 0, 64)
	for _, seg := range path {
		buf = append(buf, byte(len(seg)))
		buf = append(buf, seg...)
	}
	buf = append(buf, 0xff)
	buf = append(buf, key...)
	return pathKey(buf)
}

// Resolved is a cached reference-resolution outcome: the terminal absolute
// path/key the chain bottomed out at, and the terminal element itself.
type Resolved struct {
	Path [][]byte
	Key  []byte
	Elem element.Element
}

// Cache is an in-memory LRU cache of resolved reference targets, mirroring
// cache/memory.Cache's shape: a generic *lru.Cache guarded by a RWMutex
// (golang-lru/v2 is internally locked only per-operation; the extra
// mutex keeps a Get+Put pair observed from outside consistent under
// concurrent callers).
type Cache struct {
	lru *lru.Cache[pathKey, Resolved]
	mu  sync.RWMutex
}

// NewCache creates an in-memory LRU cache holding up to size resolved
// reference targets.
func NewCache(size int) (*Cache, error) {
	l, err := lru.New[pathKey, Resolved](size)
	if err != nil {
		return nil, fmt.Errorf("reference: new cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

func (c *Cache) get(path [][]byte, key []byte) (Resolved, bool) {
	if c == nil {
		return Resolved{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Get(makeKey(path, key))
}

func (c *Cache) put(path [][]byte, key []byte, r Resolved) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(makeKey(path, key), r)
}

// Invalidate drops any cached resolution keyed by (path, key), used when a
// write replaces whatever value used to live there.
func (c *Cache) Invalidate(path [][]byte, key []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(makeKey(path, key))
}

// Clear empties the cache, e.g. after a batch that may have touched
// references anywhere in the grove.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Lookup fetches the raw, still-marshaled element bytes stored at
// (path, key). Implemented by grove.DB against a live storage.Tx; kept as
// an interface here so this package never imports grove (which will
// import this package to offer resolved reads).
type Lookup func(ctx context.Context, path [][]byte, key []byte, acc *cost.OperationCost) (element.Element, error)

// Resolve follows el (assumed to be a Reference) from currentPath — the
// full absolute address (subtree path with el's own key appended) of the
// element carrying the reference — iterating through however many
// further References the chain contains, up to el.MaxHop hops. It
// detects cycles via a visited-absolute-path set and returns
// groveerr.ErrCyclicReference or groveerr.ErrReferenceLimitExceeded on
// failure, matching the loop:
//
//	visited = {}
//	for hop = 1..=max_hops:
//	  absolute = resolve_form(current_path, form)
//	  if absolute in visited: fail CyclicReference
//	  visited.insert(absolute)
//	  e = get(absolute)
//	  if e is Reference: current = e; continue
//	  else: return (e, absolute)
//	fail ReferenceLimitExceeded
//
// On success the resolution is stored in cache (which may be nil, in
// which case Resolve degrades to uncached resolution).
func Resolve(ctx context.Context, lookup Lookup, cache *Cache, currentPath [][]byte, el element.Element, acc *cost.OperationCost) (Resolved, error) {
	if el.Tag != element.TagReference {
		return Resolved{}, fmt.Errorf("reference: Resolve called on non-Reference element (tag %s)", el.Tag)
	}

	maxHop := el.MaxHop
	if maxHop == 0 {
		maxHop = element.DefaultMaxHop
	}

	visited := make(map[pathKey]struct{}, maxHop)
	form := el.RefForm
	path := currentPath

	for hop := uint32(0); hop < maxHop; hop++ {
		absPath, err := form.Resolve(path)
		if err != nil {
			return Resolved{}, err
		}
		if len(absPath) == 0 {
			return Resolved{}, groveerr.Wrap(groveerr.ErrCorruptedData, "reference: form resolved to an empty path")
		}
		parent := absPath[:len(absPath)-1]
		key := absPath[len(absPath)-1]
		vk := makeKey(parent, key)
		if _, seen := visited[vk]; seen {
			return Resolved{}, groveerr.Wrap(groveerr.ErrCyclicReference, "reference: cycle at path %q key %x", parent, key)
		}
		visited[vk] = struct{}{}

		if r, ok := cache.get(parent, key); ok && r.Elem.Tag != element.TagReference {
			return r, nil
		}

		target, err := lookup(ctx, parent, key, acc)
		if err != nil {
			return Resolved{}, err
		}
		if target.Tag != element.TagReference {
			r := Resolved{Path: parent, Key: append([]byte{}, key...), Elem: target}
			cache.put(parent, key, r)
			return r, nil
		}
		form = target.RefForm
		path = absPath
	}
	return Resolved{}, groveerr.Wrap(groveerr.ErrReferenceLimitExceeded, "reference: exceeded %d hops from path %q", maxHop, currentPath)
}

// storageLookup adapts a raw storage.Tx-backed key lookup (as used by
// grove.DB.Get) into a Lookup, so callers that already hold an open
// subtree Get function don't need to reimplement path routing.
func storageLookup(get func(ctx context.Context, path [][]byte, key []byte, acc *cost.OperationCost) ([]byte, error)) Lookup {
	return func(ctx context.Context, path [][]byte, key []byte, acc *cost.OperationCost) (element.Element, error) {
		raw, err := get(ctx, path, key, acc)
		if err != nil {
			return element.Element{}, err
		}
		if raw == nil {
			return element.Element{}, groveerr.Wrap(groveerr.ErrElementNotFound, "reference: key %x not found at path %q", key, path)
		}
		return element.Unmarshal(raw)
	}
}

// LookupFromRaw builds a Lookup out of a function that returns an
// element's raw marshaled bytes (nil if absent), avoiding a dependency on
// any particular storage.Tx wiring.
func LookupFromRaw(get func(ctx context.Context, path [][]byte, key []byte, acc *cost.OperationCost) ([]byte, error)) Lookup {
	return storageLookup(get)
}
