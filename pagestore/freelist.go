package pagestore

import "fmt"

// FreeListManager maintains the on-disk free-list chain reachable from
// root.firstFreelistAddr (§4.3). It never holds the whole chain in memory —
// every operation walks from the root through the pageAccess cache, the
// same "hold only the address, fetch by address" discipline the teacher's
// FreeManager uses for the superblock (internal/storage/pager/freelist.go),
// adapted here from a bulk in-memory set to an always-on-disk chain with
// immediate pop/push, because the spec wants takeOne/giveBack to mutate the
// chain directly rather than batching at checkpoint time.
type FreeListManager struct {
	pa pageAccess
}

func newFreeListManager(pa pageAccess) *FreeListManager {
	return &FreeListManager{pa: pa}
}

// tail walks from firstFreelistAddr following nextAddr until the terminal
// node (nextAddr == 0). Returns nil iff the chain is empty.
func (fl *FreeListManager) tail() (*Block, error) {
	head := fl.pa.rootBlock().RootFirstFreelistAddr()
	if head == NullAddress {
		return nil, nil
	}
	addr := head
	var node *Block
	for {
		b, err := fl.pa.loadBlockAt(addr)
		if err != nil {
			return nil, err
		}
		if b.Kind() != KindFreeList {
			return nil, fmt.Errorf("free-list node %d has kind %s: %w", addr, b.Kind(), ErrCorruptFile)
		}
		node = b
		next := b.FreeListNextAddr()
		if next == NullAddress {
			return node, nil
		}
		addr = next
	}
}

// takeOne pops one address off the free-list for the allocator, or returns
// NullAddress if the list is empty (the caller then extends the file).
func (fl *FreeListManager) takeOne() (Address, error) {
	t, err := fl.tail()
	if err != nil {
		return NullAddress, err
	}
	if t == nil {
		return NullAddress, nil
	}
	if t.FreeListCount() > 0 {
		addr := t.FreeListPop()
		fl.pa.storeBlockAt(t)
		return addr, nil
	}

	// The tail is an empty list node: recycle the node itself. This is
	// the only place a free-list node is recycled (§4.3 step 3).
	prev := t.FreeListPrevAddr()
	recycled := t.addr
	fl.pa.markEmptyAt(recycled)
	if prev == NullAddress {
		fl.pa.rootBlock().SetRootFirstFreelistAddr(NullAddress)
	} else {
		prevNode, err := fl.pa.loadBlockAt(prev)
		if err != nil {
			return NullAddress, err
		}
		if prevNode.Kind() != KindFreeList {
			return NullAddress, fmt.Errorf("free-list node %d has kind %s: %w", prev, prevNode.Kind(), ErrCorruptFile)
		}
		prevNode.SetFreeListNextAddr(NullAddress)
		fl.pa.storeBlockAt(prevNode)
	}
	return recycled, nil
}

// giveBack releases addr back onto the free-list (§4.3 giveBack).
func (fl *FreeListManager) giveBack(addr Address) error {
	head := fl.pa.rootBlock().RootFirstFreelistAddr()
	if head == NullAddress {
		// No chain yet: the freed page itself becomes the first node.
		node := NewFreeListBlock(addr, fl.pa.pageSizeOf())
		fl.pa.storeBlockAt(node)
		fl.pa.rootBlock().SetRootFirstFreelistAddr(addr)
		return nil
	}

	t, err := fl.tail()
	if err != nil {
		return err
	}
	if t.FreeListCount() >= FreeListCapacity(fl.pa.pageSizeOf()) {
		// Tail is full: the freed page becomes a brand-new tail node.
		node := NewFreeListBlock(addr, fl.pa.pageSizeOf())
		node.SetFreeListPrevAddr(t.addr)
		fl.pa.storeBlockAt(node)
		t.SetFreeListNextAddr(addr)
		fl.pa.storeBlockAt(t)
		return nil
	}

	t.FreeListPush(addr)
	fl.pa.storeBlockAt(t)
	return nil
}
