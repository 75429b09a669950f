package pagestore

// allocator hands out the address of an unused page: from the free-list if
// non-empty, otherwise by extending the in-memory page count (§4.4).
type allocator struct {
	pa       pageAccess
	freelist *FreeListManager
}

func newAllocator(pa pageAccess, freelist *FreeListManager) *allocator {
	return &allocator{pa: pa, freelist: freelist}
}

// allocate returns the address of an unused page. Internal invariant
// violations inside the free-list chain are fatal (§7 "Internal invariant
// violations ... are fatal — implementations may abort"); a corrupt chain
// surfaces as a panic here rather than a silently-wrong address.
func (a *allocator) allocate() Address {
	addr, err := a.freelist.takeOne()
	if err != nil {
		panic(err)
	}
	if addr != NullAddress {
		return addr
	}
	return a.pa.nextMemoryAddress()
}
