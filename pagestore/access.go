package pagestore

// pageAccess is the narrow capability set the free-list manager, allocator,
// and overflow engine are given at construction instead of a reference to
// the whole Store (§9 design notes: "the callee never sees the whole
// store, only the narrow capability set"). *Store implements it.
type pageAccess interface {
	pageSizeOf() int
	rootBlock() *Block
	loadBlockAt(addr Address) (*Block, error)
	storeBlockAt(b *Block)
	markEmptyAt(addr Address)
	nextMemoryAddress() Address
	checkCache()
}
