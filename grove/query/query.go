// Package query implements GroveDB's path queries: a PathQuery rooted at
// a subtree, carrying a Query of QueryItem ranges plus default/conditional
// subqueries recursed into every yielded Tree element, with a single
// offset/limit pair applied globally across the whole recursion.
//
// Grounded on indexnode.go's Find/FindRange/FindByData binary-search
// dispatch (sort.Search over a sorted entry list, each access pattern its
// own bounded scan) — generalized from IndexNode's flat sorted byte
// array into merk.Tree.WalkRange's AVL-pruned equivalent, since GroveDB's
// ranges address a tree, not a flat indexed block.
package query

import (
	"bytes"
	"context"
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/storage"
)

// ItemKind identifies one of the ten QueryItem shapes a Query's items and
// a ConditionalSubquery's match key can take.
type ItemKind uint8

const (
	ItemKey                   ItemKind = iota
	ItemRange                          // [Start, End)
	ItemRangeInclusive                 // [Start, End]
	ItemRangeFull                      // unbounded
	ItemRangeFrom                      // [Start, ...)
	ItemRangeTo                        // (..., End)
	ItemRangeToInclusive               // (..., End]
	ItemRangeAfter                     // (Start, ...)
	ItemRangeAfterTo                   // (Start, End)
	ItemRangeAfterToInclusive          // (Start, End]
)

// Item is one QueryItem: either an exact Key match or a bounded range
// over Start/End, whose meaning depends on Kind.
type Item struct {
	Kind  ItemKind
	Key   []byte
	Start []byte
	End   []byte
}

// Bounds converts it to merk.RangeBounds, plus whether it is an exact-key
// match (in which case bounds is the zero value and key should be used
// with Tree.Get instead of Tree.WalkRange).
func (it Item) Bounds() (bounds merk.RangeBounds, isKey bool, key []byte) {
	switch it.Kind {
	case ItemKey:
		return merk.RangeBounds{}, true, it.Key
	case ItemRange:
		return merk.RangeBounds{Lower: it.Start, Upper: it.End, UpperExclude: true}, false, nil
	case ItemRangeInclusive:
		return merk.RangeBounds{Lower: it.Start, Upper: it.End}, false, nil
	case ItemRangeFull:
		return merk.RangeBounds{}, false, nil
	case ItemRangeFrom:
		return merk.RangeBounds{Lower: it.Start}, false, nil
	case ItemRangeTo:
		return merk.RangeBounds{Upper: it.End, UpperExclude: true}, false, nil
	case ItemRangeToInclusive:
		return merk.RangeBounds{Upper: it.End}, false, nil
	case ItemRangeAfter:
		return merk.RangeBounds{Lower: it.Start, LowerExclude: true}, false, nil
	case ItemRangeAfterTo:
		return merk.RangeBounds{Lower: it.Start, LowerExclude: true, Upper: it.End, UpperExclude: true}, false, nil
	case ItemRangeAfterToInclusive:
		return merk.RangeBounds{Lower: it.Start, LowerExclude: true, Upper: it.End}, false, nil
	default:
		return merk.RangeBounds{}, false, nil
	}
}

// Matches reports whether key falls within it, used to evaluate
// ConditionalSubquery dispatch against an already-yielded key without
// re-walking the tree.
func (it Item) Matches(key []byte) bool {
	bounds, isKey, exact := it.Bounds()
	if isKey {
		return bytes.Equal(key, exact)
	}
	return !bounds.BelowLower(key) && !bounds.AboveUpper(key)
}

// ConditionalSubquery pairs a match Item with the Query to recurse into
// a yielded Tree element's child subtree when Item matches that
// element's key, evaluated in order with the first match winning.
type ConditionalSubquery struct {
	Item  Item
	Query *Query
}

// Query selects keys within one subtree and, for every yielded Tree
// element, optionally recurses into its child subtree with a subquery.
type Query struct {
	Items                   []Item
	DefaultSubquery         *Query
	ConditionalSubqueries   []ConditionalSubquery
	LeftToRight             bool
	AddParentTreeOnSubquery bool
}

// subqueryFor picks the subquery a yielded (key, element) pair should
// recurse with: the first matching conditional, else the default, else
// nil (no recursion — the Tree element itself is a leaf result).
func (q *Query) subqueryFor(key []byte) *Query {
	for _, cs := range q.ConditionalSubqueries {
		if cs.Item.Matches(key) {
			return cs.Query
		}
	}
	return q.DefaultSubquery
}

// SizedQuery pairs a Query with the single offset/limit pair applied
// once, globally, across however much of the grove the query's
// recursion touches.
type SizedQuery struct {
	Query  *Query
	Limit  *uint64
	Offset *uint64
}

// PathQuery roots a SizedQuery at a subtree path.
type PathQuery struct {
	Path       [][]byte
	SizedQuery SizedQuery
}

// Result is one yielded (path, key, element) triple — path is the
// subtree the element lives in, not the element's own child path.
type Result struct {
	Path    [][]byte
	Key     []byte
	Element element.Element
}

// Default safety caps, applied regardless of what the caller's Limit
// asks for: an unbounded or pathological query cannot force the grove
// to materialize an unbounded result set or to load an unbounded number
// of bytes into memory while doing so.
const (
	DefaultMaxResults     = 10_000_000
	DefaultMaxResultBytes = 256 * 1024 * 1024
)

// execState threads the query's single global offset/limit counters and
// safety-cap bookkeeping through the recursion.
type execState struct {
	offset     uint64
	hasOffset  bool
	limit      uint64
	hasLimit   bool
	maxResults int
	maxBytes   int

	visited   int
	bytesSeen int
	results   []Result
}

func (s *execState) done() bool {
	if s.hasLimit && s.limit == 0 {
		return true
	}
	return false
}

func (s *execState) take(r Result, valueLen int) error {
	s.visited++
	s.bytesSeen += valueLen
	if s.visited > s.maxResults {
		return groveerr.Wrap(groveerr.ErrCapacityExceeded, "query: exceeded %d result safety cap", s.maxResults)
	}
	if s.bytesSeen > s.maxBytes {
		return groveerr.Wrap(groveerr.ErrCapacityExceeded, "query: exceeded %d byte safety cap", s.maxBytes)
	}
	if s.hasOffset && s.offset > 0 {
		s.offset--
		return nil
	}
	s.results = append(s.results, r)
	if s.hasLimit {
		s.limit--
	}
	return nil
}

// Execute runs pq against db within tx, returning every yielded
// (path, key, element) after applying offset then limit globally.
func Execute(ctx context.Context, db *grove.DB, tx storage.Tx, pq PathQuery, acc *cost.OperationCost) ([]Result, error) {
	state := &execState{maxResults: DefaultMaxResults, maxBytes: DefaultMaxResultBytes}
	if pq.SizedQuery.Offset != nil {
		state.hasOffset, state.offset = true, *pq.SizedQuery.Offset
	}
	if pq.SizedQuery.Limit != nil {
		state.hasLimit, state.limit = true, *pq.SizedQuery.Limit
	}
	if pq.SizedQuery.Query == nil {
		return nil, groveerr.Wrap(groveerr.ErrNotSupported, "query: PathQuery requires a non-nil Query")
	}
	if err := executeAt(ctx, db, tx, pq.Path, pq.SizedQuery.Query, state, acc); err != nil {
		return nil, err
	}
	return state.results, nil
}

// executeAt collects every match for q's items within the subtree at
// path, merges them into one direction-ordered, deduplicated stream, and
// for each match either records it (non-Tree, or a Tree with no
// applicable subquery) or recurses into its child subtree (Tree with a
// subquery, optionally also recording the parent Tree element itself
// when AddParentTreeOnSubquery is set).
func executeAt(ctx context.Context, db *grove.DB, tx storage.Tx, path [][]byte, q *Query, state *execState, acc *cost.OperationCost) error {
	tr, _, err := grove.OpenTree(ctx, tx, path, acc)
	if err != nil {
		return err
	}

	matches, err := collectMatches(ctx, tr, q.Items, q.LeftToRight, acc)
	if err != nil {
		return err
	}

	for _, m := range matches {
		if state.done() {
			return nil
		}
		el, err := element.Unmarshal(m.value)
		if err != nil {
			return err
		}

		if !el.Tag.IsTree() {
			if err := state.take(Result{Path: path, Key: m.key, Element: el}, len(m.value)); err != nil {
				return err
			}
			continue
		}

		sub := q.subqueryFor(m.key)
		if sub == nil {
			if err := state.take(Result{Path: path, Key: m.key, Element: el}, len(m.value)); err != nil {
				return err
			}
			continue
		}
		if q.AddParentTreeOnSubquery {
			if err := state.take(Result{Path: path, Key: m.key, Element: el}, len(m.value)); err != nil {
				return err
			}
			if state.done() {
				return nil
			}
		}
		if !el.HasChild() {
			continue
		}
		childPath := grove.ChildPath(path, m.key)
		if err := executeAt(ctx, db, tx, childPath, sub, state, acc); err != nil {
			return err
		}
	}
	return nil
}

type kv struct {
	key, value []byte
}

// collectMatches gathers every key matching any of items within tr,
// merges the per-item result sets into one direction-ordered stream with
// adjacent duplicate keys collapsed (items are expected not to overlap
// in well-formed queries, but a caller-constructed overlapping item list
// must not double-count a key).
func collectMatches(ctx context.Context, tr *merk.Tree, items []Item, leftToRight bool, acc *cost.OperationCost) ([]kv, error) {
	var all []kv
	for _, it := range items {
		bounds, isKey, key := it.Bounds()
		if isKey {
			v, err := tr.Get(ctx, key, acc)
			if err != nil {
				return nil, err
			}
			if v != nil {
				all = append(all, kv{key: append([]byte{}, key...), value: v})
			}
			continue
		}
		err := tr.WalkRange(ctx, acc, bounds, leftToRight, func(k, v []byte) (bool, error) {
			all = append(all, kv{key: append([]byte{}, k...), value: append([]byte{}, v...)})
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		c := bytes.Compare(all[i].key, all[j].key)
		if leftToRight {
			return c < 0
		}
		return c > 0
	})
	out := all[:0]
	var prev []byte
	for i, kv := range all {
		if i > 0 && bytes.Equal(kv.key, prev) {
			continue
		}
		out = append(out, kv)
		prev = kv.key
	}
	return out, nil
}
