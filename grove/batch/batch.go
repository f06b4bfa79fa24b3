// Package batch implements GroveDB's multi-operation grove batches: a list
// of qualified (path, key, op) entries applied together, with root-hash
// propagation deferred per dirtied subtree rather than run once per key.
//
// Grounded on processor.ProcessBlock/ProcessSubtree's shape (collect a
// batch of work, validate it, then commit it as one staged unit guarded
// by a single piece of mutable state) for the collect-validate-commit
// split; the phase bodies themselves (grouping by subtree, sorting,
// duplicate-key rejection, deferred bottom-up propagation) generalize
// grove.DB.Insert/Delete's own openTree/commitTree/propagate primitives,
// which processor.go's stubs never got far enough to need.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Kind distinguishes the two user-facing operations a batch can carry.
// Non-Merk append operations are expressed through NonMerkAppend/Appender
// below rather than as a Kind, since each specialized structure has its
// own append payload shape.
type Kind uint8

const (
	KindInsert Kind = iota
	KindDelete
)

// Op is one qualified operation: insert or delete el at key within the
// Merk subtree addressed by path.
type Op struct {
	Path    [][]byte
	Key     []byte
	Kind    Kind
	Element element.Element
}

// NonMerkAppend is one append against a non-Merk tree addressed by path
// (an MmrTree/BulkAppendTree/DenseFixedSizeTree/CommitmentTree-owning
// element living at
// the last segment of path's parent). Multiple NonMerkAppends against the
// same path coalesce in Phase 1 into however many underlying appends the
// specialized structure needs, then emit a single synthetic Op replacing
// that path's owning element with its updated root metadata.
type NonMerkAppend struct {
	Path  [][]byte
	Value []byte
}

// Appender applies a batch of coalesced appends against the non-Merk
// tree at path and returns the owning element fields to splice into a
// synthetic ReplaceNonMerkTreeRoot op (see Apply's Phase 1). Implemented
// by nonmerk/mmr, nonmerk/bulkappend, nonmerk/dense and
// nonmerk/commitment; batch has no
// direct dependency on any of them, so a caller wires in only the
// Appenders its workload actually exercises.
type Appender interface {
	// Tag is the element.Tag this Appender owns (TagMmrTree,
	// TagBulkAppendTree, TagDenseFixedSizeTree or TagCommitmentTree).
	Tag() element.Tag
	// Append applies values (in order) against the structure rooted at
	// path and returns the element fields its owning Op should now carry.
	// existing is the owning element as last committed (before this
	// batch's appends), carrying whatever fixed shape parameters the
	// structure was created with (DenseHeight, BulkChunkPower, ...) —
	// an Appender has no other way to learn them, since it is registered
	// once per Batch across every path of its tag, not once per tree.
	Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error)
}

// Batch collects operations to apply together against a grove.DB.
type Batch struct {
	db        *grove.DB
	ops       []Op
	appends   []NonMerkAppend
	appenders map[element.Tag]Appender
}

// New creates an empty batch against db. appenders may be nil if the
// batch carries no non-Merk appends.
func New(db *grove.DB, appenders ...Appender) *Batch {
	b := &Batch{db: db, appenders: make(map[element.Tag]Appender, len(appenders))}
	for _, a := range appenders {
		b.appenders[a.Tag()] = a
	}
	return b
}

// Insert queues an insert of el at key within path.
func (b *Batch) Insert(path [][]byte, key []byte, el element.Element) {
	b.ops = append(b.ops, Op{Path: path, Key: key, Kind: KindInsert, Element: el})
}

// Delete queues a delete of key within path.
func (b *Batch) Delete(path [][]byte, key []byte) {
	b.ops = append(b.ops, Op{Path: path, Key: key, Kind: KindDelete})
}

// Append queues a value to append to the non-Merk tree addressed by
// path. path's owning element must have been created (via a prior
// Insert in this same batch, or already committed) with a tag matching
// one of the Appenders this Batch was built with.
func (b *Batch) Append(path [][]byte, value []byte) {
	b.appends = append(b.appends, NonMerkAppend{Path: path, Value: value})
}

// pathKey flattens (path, key) into a comparable, sortable string: a
// byte-length-prefixed path followed by a 0xff path/key separator and
// the bare key, so lexicographic string order matches (path, key)'s
// natural depth-then-segment-then-key order closely enough for stable
// grouping (exact cross-depth ordering does not matter here; only
// grouping identical (path, key) pairs and identical path prefixes does).
func pathKey(path [][]byte, key []byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(byte(len(seg)))
		buf.Write(seg)
	}
	buf.WriteByte(0xff)
	buf.Write(key)
	return buf.String()
}

func pathOnlyKey(path [][]byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(byte(len(seg)))
		buf.Write(seg)
	}
	return buf.String()
}

// Apply runs the batch's three phases against tx: preprocess non-Merk
// appends into synthetic ops, validate and stably sort the combined op
// list, then apply it subtree-by-subtree with root-hash propagation
// deferred until every dirtied subtree in a round has committed, so an
// ancestor shared by several dirtied descendants is only re-committed
// once per round instead of once per descendant.
func (b *Batch) Apply(ctx context.Context, tx storage.Tx, acc *cost.OperationCost) error {
	ops, err := b.preprocessNonMerkAppends(ctx, tx, acc)
	if err != nil {
		return err
	}

	ops, err = validateAndSort(ops)
	if err != nil {
		return err
	}

	dirty, err := applyBySubtree(ctx, tx, b.db, ops, acc)
	if err != nil {
		return err
	}
	if err := propagateDirty(ctx, tx, dirty, acc); err != nil {
		return err
	}
	b.db.RefCache.Clear()
	return nil
}

// preprocessNonMerkAppends is Phase 1: group queued appends by the
// non-Merk tree path they target, run each group through its Appender,
// and splice the result in as a synthetic KindInsert op against that
// path's own (parent, key) address — replacing whatever the caller may
// also have queued for that exact (parent, key) is an error, since a
// batch does not define an ordering between "replace this tree's root
// wholesale" and "append into it".
func (b *Batch) preprocessNonMerkAppends(ctx context.Context, tx storage.Tx, acc *cost.OperationCost) ([]Op, error) {
	if len(b.appends) == 0 {
		return append([]Op{}, b.ops...), nil
	}

	groups := make(map[string][][]byte)
	groupPath := make(map[string][][]byte)
	order := make([]string, 0)
	for _, a := range b.appends {
		k := pathOnlyKey(a.Path)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			groupPath[k] = a.Path
		}
		groups[k] = append(groups[k], a.Value)
	}

	out := append([]Op{}, b.ops...)
	for _, k := range order {
		path := groupPath[k]
		if len(path) == 0 {
			return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "batch: non-Merk append needs a non-empty path")
		}
		parent := path[:len(path)-1]
		key := path[len(path)-1]

		existing, err := b.db.Get(ctx, tx, parent, key, acc)
		if err != nil && groveerr.Classify(err) != groveerr.KindElementNotFound {
			return nil, err
		}
		if err != nil {
			return nil, groveerr.Wrap(groveerr.ErrPathNotFound, "batch: append target %q has no owning element yet", path)
		}
		if !existing.Tag.IsNonMerkTree() {
			return nil, groveerr.Wrap(groveerr.ErrTypeMismatch, "batch: append target %q is not a non-Merk tree (tag %s)", path, existing.Tag)
		}
		appender, ok := b.appenders[existing.Tag]
		if !ok {
			return nil, groveerr.Wrap(groveerr.ErrNotSupported, "batch: no appender registered for tag %s", existing.Tag)
		}
		for _, op := range out {
			if len(op.Path) == len(parent) && bytes.Equal(op.Key, key) && samePath(op.Path, parent) {
				return nil, groveerr.Wrap(groveerr.ErrTypeMismatch, "batch: path %q has both an append and a direct op queued against its owning key", path)
			}
		}
		updated, err := appender.Append(ctx, tx, path, existing, groups[k], acc)
		if err != nil {
			return nil, err
		}
		out = append(out, Op{Path: parent, Key: key, Kind: KindInsert, Element: updated})
	}
	return out, nil
}

func samePath(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// validateAndSort is Phase 2: stably sort ops by (path, key) so a
// subtree's operations land contiguously and in key order, reject
// duplicate (path, key) entries among all ops (the synthetic non-Merk
// replacement ops from Phase 1 included), and fail fast on the one type
// check that doesn't need a live tx: an insert's element tag must be
// valid.
func validateAndSort(ops []Op) ([]Op, error) {
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if op.Kind == KindInsert && !op.Element.Tag.Valid() {
			return nil, groveerr.Wrap(groveerr.ErrTypeMismatch, "batch: invalid element tag %d at path %q key %x", op.Element.Tag, op.Path, op.Key)
		}
		k := pathKey(op.Path, op.Key)
		if _, dup := seen[k]; dup {
			return nil, groveerr.Wrap(groveerr.ErrTypeMismatch, "batch: duplicate operation for path %q key %x", op.Path, op.Key)
		}
		seen[k] = struct{}{}
	}

	sorted := append([]Op{}, ops...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := pathKey(sorted[i].Path, sorted[i].Key), pathKey(sorted[j].Path, sorted[j].Key)
		return pi < pj
	})
	return sorted, nil
}

// dirtyRoot records a subtree's freshly committed root link, keyed by
// its own absolute path, for Phase 3's deferred propagation pass.
type dirtyRoot struct {
	path [][]byte
	root *merk.Link
}

// applyBySubtree is the write half of Phase 3: group sorted ops by the
// subtree they target, apply each subtree's ops against one opened
// merk.Tree, commit once per subtree, and return every dirtied
// subtree's freshly committed root keyed by its path string.
func applyBySubtree(ctx context.Context, tx storage.Tx, db *grove.DB, ops []Op, acc *cost.OperationCost) (map[string]dirtyRoot, error) {
	dirty := make(map[string]dirtyRoot)

	i := 0
	for i < len(ops) {
		path := ops[i].Path
		j := i
		for j < len(ops) && samePath(ops[j].Path, path) {
			j++
		}
		group := ops[i:j]
		i = j

		tr, prefix, err := grove.OpenTree(ctx, tx, path, acc)
		if err != nil {
			return nil, err
		}
		for _, op := range group {
			switch op.Kind {
			case KindInsert:
				if err := applyInsert(ctx, tx, db, tr, path, op.Key, op.Element, acc); err != nil {
					return nil, err
				}
			case KindDelete:
				if err := applyDelete(ctx, tx, db, tr, path, op.Key, acc); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("batch: unknown op kind %d", op.Kind)
			}
		}
		root, err := grove.CommitTree(ctx, tx, prefix, tr, acc)
		if err != nil {
			return nil, err
		}
		if err := grove.MarkSubtreeExists(ctx, tx, path, acc); err != nil {
			return nil, err
		}
		dirty[pathOnlyKey(path)] = dirtyRoot{path: path, root: root}
	}
	return dirty, nil
}

// applyInsert mirrors grove.DB.Insert's per-key logic (childHash
// resolution for tree-owning and Reference elements) but against a tree
// already opened for this subtree's whole batch of ops, and without
// propagating — propagateDirty handles every dirtied subtree's ancestors
// together once Phase 3's write pass finishes.
func applyInsert(ctx context.Context, tx storage.Tx, db *grove.DB, tr *merk.Tree, path [][]byte, key []byte, el element.Element, acc *cost.OperationCost) error {
	var childHash *gvhash.Hash
	switch {
	case el.Tag.IsTree() && el.HasChild():
		h, err := grove.ChildRootHash(ctx, tx, grove.ChildPath(path, key), acc)
		if err != nil {
			return err
		}
		childHash = h
	case el.Tag == element.TagReference:
		h, err := db.ReferenceValueHash(ctx, tx, path, key, el, acc)
		if err != nil {
			return err
		}
		childHash = &h
		db.InvalidateReference(path, key)
	case el.Tag.IsNonMerkTree():
		h, err := db.NonMerkChildHash(ctx, tx, grove.ChildPath(path, key), el.Tag, acc)
		if err != nil {
			return err
		}
		childHash = h
	}

	raw, err := el.Marshal()
	if err != nil {
		return fmt.Errorf("batch: marshal element: %w", err)
	}
	contrib, err := grove.ContribFor(el, childHash)
	if err != nil {
		return err
	}
	return tr.Put(ctx, key, raw, contrib, acc)
}

func applyDelete(ctx context.Context, tx storage.Tx, db *grove.DB, tr *merk.Tree, path [][]byte, key []byte, acc *cost.OperationCost) error {
	raw, err := tr.Get(ctx, key, acc)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	el, err := element.Unmarshal(raw)
	if err != nil {
		return err
	}
	cp := grove.ChildPath(path, key)
	switch {
	case el.Tag.IsTree() && el.HasChild():
		if err := db.DeleteSubtreeRecursive(ctx, tx, cp, acc); err != nil {
			return err
		}
	case el.Tag.IsNonMerkTree():
		if err := grove.PurgeNonMerkNamespace(ctx, tx, cp, acc); err != nil {
			return err
		}
	}
	return tr.Delete(ctx, key, acc)
}

// propagateDirty is Phase 3's bottom-up half: repeatedly take every
// dirtied path at the current deepest depth, group them by parent
// subtree, apply all of a parent's sibling updates to one opened tree,
// commit once, and register the parent itself as dirty for the next
// (shallower) round — until only the grove root's own top-level
// subtrees (path length 0) remain, which have no parent element to
// update.
func propagateDirty(ctx context.Context, tx storage.Tx, dirty map[string]dirtyRoot, acc *cost.OperationCost) error {
	for {
		maxDepth := -1
		for _, d := range dirty {
			if len(d.path) > maxDepth {
				maxDepth = len(d.path)
			}
		}
		if maxDepth <= 0 {
			return nil
		}

		type childUpdate struct {
			key  []byte
			root *merk.Link
		}
		parentPaths := make(map[string][][]byte)
		parentChildren := make(map[string][]childUpdate)

		for k, d := range dirty {
			if len(d.path) != maxDepth {
				continue
			}
			parent := d.path[:len(d.path)-1]
			key := d.path[len(d.path)-1]
			pk := pathOnlyKey(parent)
			parentPaths[pk] = parent
			parentChildren[pk] = append(parentChildren[pk], childUpdate{key: key, root: d.root})
			delete(dirty, k)
		}

		for pk, parentPath := range parentPaths {
			tr, prefix, err := grove.OpenTree(ctx, tx, parentPath, acc)
			if err != nil {
				return err
			}
			for _, cu := range parentChildren[pk] {
				raw, err := tr.Get(ctx, cu.key, acc)
				if err != nil {
					return err
				}
				if raw == nil {
					return groveerr.Wrap(groveerr.ErrPathNotFound, "batch: propagate: parent key %x missing at path %q", cu.key, parentPath)
				}
				el, err := element.Unmarshal(raw)
				if err != nil {
					return err
				}
				if !el.Tag.IsTree() {
					return fmt.Errorf("batch: propagate: element at %x, path %q is not tree-owning (tag %s)", cu.key, parentPath, el.Tag)
				}

				var childHash *gvhash.Hash
				if cu.root == nil {
					el.ChildRootKey = nil
					el.Sum = 0
					el.Count = 0
					el.BigSum = nil
				} else {
					el.ChildRootKey = append([]byte{}, cu.root.Key...)
					h := cu.root.Hash
					childHash = &h
					el.Sum = cu.root.Sum
					el.Count = cu.root.Count
					el.BigSum = cu.root.BigSum
				}
				newRaw, err := el.Marshal()
				if err != nil {
					return fmt.Errorf("batch: marshal element: %w", err)
				}
				contrib, err := grove.ContribFor(el, childHash)
				if err != nil {
					return err
				}
				if err := tr.Put(ctx, cu.key, newRaw, contrib, acc); err != nil {
					return err
				}
			}
			root, err := grove.CommitTree(ctx, tx, prefix, tr, acc)
			if err != nil {
				return err
			}
			dirty[pk] = dirtyRoot{path: parentPath, root: root}
		}
	}
}
