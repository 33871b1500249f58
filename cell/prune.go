package cell

// KeepPath designates a subtree that must stay fully expanded after
// pruning: a sequence of child indices starting at the DAG root. Every cell
// on the path itself stays expanded too, with its off-path children
// collapsed to pruned branches.
type KeepPath []int

// Prune rebuilds the tree rooted at root, replacing every subtree through
// which no keep path passes with a single pruned-branch cell carrying the
// subtree's hash. The returned root always reports the same hash as the
// input root.
//
// Pruning with an empty keep set collapses the whole tree into one pruned
// branch; a path of length zero keeps everything and makes Prune the
// identity. Pruning is idempotent for a fixed keep set.
func Prune(root *Cell, keep []KeepPath) (*Cell, error) {
	if root == nil {
		return nil, FormatErrorf("nil root cell")
	}
	if len(keep) == 0 {
		return NewPrunedBranch(root), nil
	}

	for _, path := range keep {
		if len(path) == 0 {
			// the whole tree is kept
			return root, nil
		}
	}

	return pruneAt(root, keep)
}

func pruneAt(c *Cell, keep []KeepPath) (*Cell, error) {
	// group the path continuations by their next hop
	byChild := make(map[int][]KeepPath)
	for _, path := range keep {
		if len(path) == 0 {
			// a path terminates here: the entire subtree stays expanded
			return c, nil
		}
		next := path[0]
		if next < 0 || next >= len(c.refs) {
			return nil, FormatErrorf("keep path child index %d out of range (refs: %d)", next, len(c.refs))
		}
		byChild[next] = append(byChild[next], path[1:])
	}

	b := NewBuilder().StoreBits(c.data, c.bitLen)
	for i, ref := range c.refs {
		tails, ok := byChild[i]
		if !ok {
			b.StoreRef(NewPrunedBranch(ref))
			continue
		}
		child, err := pruneAt(ref, tails)
		if err != nil {
			return nil, err
		}
		b.StoreRef(child)
	}

	pruned, err := b.build(c.kind)
	if err != nil {
		return nil, err
	}
	if pruned.hash != c.hash {
		// must be unreachable: pruned branches report the original hash
		return nil, FormatErrorf("pruning changed the root hash")
	}
	return pruned, nil
}
