package pagestore

import "fmt"

// Debug returns one formatted line per page currently known to the store
// (0 through the in-memory page count), in the style of the teacher's
// InspectPage — trimmed down to the fields this format actually carries,
// since the on-disk layout here has no LSN/CRC/B+Tree fields to report.
func (s *Store) Debug() ([]string, error) {
	lines := make([]string, 0, s.memoryPageCount)
	for i := uint32(0); i < s.memoryPageCount; i++ {
		addr := Address(i)
		var b *Block
		if cached, ok := s.cache.get(addr); ok {
			b = cached
		} else {
			loaded, err := s.loadBlockAt(addr)
			if err != nil {
				return nil, err
			}
			b = loaded
		}
		lines = append(lines, formatDebugLine(addr, b))
	}
	return lines, nil
}

func formatDebugLine(addr Address, b *Block) string {
	switch {
	case b.Kind() == KindEmpty:
		return fmt.Sprintf("%03d: Empty", addr)
	case b.Kind() == KindRoot:
		return fmt.Sprintf("%03d: Root [pageSize: %d, emptylistAddr: %d, nextPage: %d]",
			addr, b.RootPageSize(), b.RootFirstFreelistAddr(), b.RootNextOverflowAddr())
	case b.Kind() == KindFreeList:
		return fmt.Sprintf("%03d: FreeList [prevPage: %d, nextPage: %d, count: %d]",
			addr, b.FreeListPrevAddr(), b.FreeListNextAddr(), b.FreeListCount())
	case b.Kind() == KindData:
		return fmt.Sprintf("%03d: Data [prevPage: %d, nextPage: %d]",
			addr, b.ChainPrevAddr(), b.ChainNextAddr())
	case b.Kind().IsEntry():
		return fmt.Sprintf("%03d: %s [nextPage: %d]", addr, b.Kind(), b.ChainNextAddr())
	default:
		return fmt.Sprintf("%03d: Unknown(%d)", addr, uint8(b.Kind()))
	}
}

// VerifyStore walks every reachable structure in the file — the root, the
// free-list chain, and every head page's overflow chain — mirroring the
// teacher's VerifyDB/GC reachability scan but narrowed to this format's
// invariants (no CRCs, no B+Tree). It reports cycles, out-of-range links,
// chain or free-list nodes of the wrong kind, and Empty pages that are not
// on the free-list. It does not report a Data page that no chain reaches,
// a page reached by more than one chain, an address listed twice on the
// free-list, or a free-listed address that a chain also reaches.
func (s *Store) VerifyStore() ([]string, error) {
	var issues []string
	reachable := make(map[Address]bool)
	reachable[RootAddress] = true

	walkChain := func(start Address, label string) {
		seen := make(map[Address]bool)
		addr := start
		for addr != NullAddress {
			if seen[addr] {
				issues = append(issues, fmt.Sprintf("%s: cycle detected at page %d", label, addr))
				return
			}
			seen[addr] = true
			if uint32(addr) >= s.memoryPageCount {
				issues = append(issues, fmt.Sprintf("%s: page %d out of range", label, addr))
				return
			}
			b, err := s.loadBlockAt(addr)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: page %d: %v", label, addr, err))
				return
			}
			if b.Kind() != KindData {
				issues = append(issues, fmt.Sprintf("%s: page %d has kind %s, want Data", label, addr, b.Kind()))
				return
			}
			reachable[addr] = true
			addr = b.ChainNextAddr()
		}
	}

	root := s.rootBlock()
	freeAddrs := make(map[Address]bool)
	flAddr := root.RootFirstFreelistAddr()
	seenFL := make(map[Address]bool)
	for flAddr != NullAddress {
		if seenFL[flAddr] {
			issues = append(issues, fmt.Sprintf("free-list: cycle detected at page %d", flAddr))
			break
		}
		seenFL[flAddr] = true
		b, err := s.loadBlockAt(flAddr)
		if err != nil {
			issues = append(issues, fmt.Sprintf("free-list: page %d: %v", flAddr, err))
			break
		}
		if b.Kind() != KindFreeList {
			issues = append(issues, fmt.Sprintf("free-list: page %d has kind %s, want FreeList", flAddr, b.Kind()))
			break
		}
		reachable[flAddr] = true
		for i := 0; i < b.FreeListCount(); i++ {
			freeAddrs[b.FreeListEntry(i)] = true
		}
		flAddr = b.FreeListNextAddr()
	}

	walkChain(root.RootNextOverflowAddr(), "root")

	for i := uint32(1); i < s.memoryPageCount; i++ {
		addr := Address(i)
		if reachable[addr] || freeAddrs[addr] {
			continue
		}
		b, err := s.loadBlockAt(addr)
		if err != nil {
			issues = append(issues, fmt.Sprintf("page %d: %v", addr, err))
			continue
		}
		switch {
		case b.Kind() == KindEmpty:
			issues = append(issues, fmt.Sprintf("page %d: Empty but not on the free-list", addr))
		case isHeadKind(b.Kind()):
			reachable[addr] = true
			walkChain(b.ChainNextAddr(), fmt.Sprintf("entry %d", addr))
		}
	}

	return issues, nil
}
