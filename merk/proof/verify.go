package proof

import (
	"fmt"

	"github.com/dashpay/grovedb-sub006/gvhash"
)

// entry is a stack slot: a resolved opaque hash (KindHash / already
// fully combined), or a partial node awaiting its Parent/Child
// attachments before its hash can be computed.
type entry struct {
	node      *Node
	left      *gvhash.Hash
	right     *gvhash.Hash
	isPartial bool
}

func (e *entry) resolve() (gvhash.Hash, error) {
	if !e.isPartial {
		return e.node.Hash, nil
	}
	kvHash, err := kvHashFromNodeVariant(e.node)
	if err != nil {
		return gvhash.Hash{}, err
	}
	return nodeHashOf(kvHash, e.left, e.right, e.node.Feature, e.node.Count), nil
}

// Verify replays ops on a stack, invoking visit for every queried node
// encountered, and returns the single reconstructed root hash. The
// caller compares it against the expected stored root.
func Verify(ops []Op, visit Visitor) (gvhash.Hash, error) {
	// GenerateProof emits no ops for an empty tree, whose root hash is zero.
	if len(ops) == 0 {
		return gvhash.Zero, nil
	}
	var stack []*entry

	pop := func() (*entry, error) {
		if len(stack) == 0 {
			return nil, fmt.Errorf("proof: stack underflow")
		}
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return e, nil
	}

	for _, op := range ops {
		switch op.Code {
		case OpPush, OpPushInverted:
			if op.Node == nil {
				return gvhash.Hash{}, fmt.Errorf("proof: push op missing node")
			}
			n := op.Node
			e := &entry{node: n}
			switch n.Kind {
			case KindHash:
				e.isPartial = false
			default:
				e.isPartial = true
			}
			if visit != nil {
				switch n.Kind {
				case KindKV, KindKVValueHash, KindKVValueHashFeatureType, KindKVRefValueHash:
					visit(n.Key, n.Value, n.Feature, n.Count)
				}
			}
			if op.Code == OpPush {
				stack = append(stack, e)
			} else {
				stack = append([]*entry{e}, stack...)
			}

		case OpParent, OpParentInverted:
			child, err := pop()
			if err != nil {
				return gvhash.Hash{}, err
			}
			parent, err := pop()
			if err != nil {
				return gvhash.Hash{}, err
			}
			if !parent.isPartial {
				return gvhash.Hash{}, fmt.Errorf("proof: Parent attach onto a fully-resolved node")
			}
			h, err := child.resolve()
			if err != nil {
				return gvhash.Hash{}, err
			}
			parent.left = &h
			stack = append(stack, parent)

		case OpChild, OpChildInverted:
			child, err := pop()
			if err != nil {
				return gvhash.Hash{}, err
			}
			parent, err := pop()
			if err != nil {
				return gvhash.Hash{}, err
			}
			if !parent.isPartial {
				return gvhash.Hash{}, fmt.Errorf("proof: Child attach onto a fully-resolved node")
			}
			h, err := child.resolve()
			if err != nil {
				return gvhash.Hash{}, err
			}
			parent.right = &h
			stack = append(stack, parent)

		default:
			return gvhash.Hash{}, fmt.Errorf("proof: unknown op code %d", op.Code)
		}
	}

	if len(stack) != 1 {
		return gvhash.Hash{}, fmt.Errorf("proof: expected exactly one node on stack at end, got %d", len(stack))
	}
	return stack[0].resolve()
}
