package pagestore

import "fmt"

// overflowEngine maps a single logical byte range onto a linked list of
// data pages, with lazy growth on write and cleanup on shrink (§4.5). It
// shares one (skip, remaining) walk between the read and write directions,
// the way the teacher's chain-walking helpers (internal/storage/pager/gc.go,
// overflow.go) thread state through a linked page chain one hop at a time.
type overflowEngine struct {
	pa       pageAccess
	alloc    *allocator
	freelist *FreeListManager
}

func newOverflowEngine(pa pageAccess, alloc *allocator, freelist *FreeListManager) *overflowEngine {
	return &overflowEngine{pa: pa, alloc: alloc, freelist: freelist}
}

// byteLength returns the logical length of the page headed by head: the
// head's content capacity plus the capacities of every reachable data page.
func (oe *overflowEngine) byteLength(head *Block) (int, error) {
	total := len(nodeContent(head))
	addr := nodeNext(head)
	for addr != NullAddress {
		b, err := oe.pa.loadBlockAt(addr)
		if err != nil {
			return 0, err
		}
		if b.Kind() != KindData {
			return 0, fmt.Errorf("chain node %d has kind %s, want Data: %w", addr, b.Kind(), ErrCorruptFile)
		}
		total += len(b.ChainContent())
		addr = b.ChainNextAddr()
	}
	return total, nil
}

// read copies bytes starting at start. If length is nil, it reads through
// to the end of the chain; otherwise exactly *length bytes are returned or
// ErrOutOfRange is raised.
func (oe *overflowEngine) read(head *Block, start int, length *int) ([]byte, error) {
	var out []byte
	node := head
	skip := start
	want := -1
	if length != nil {
		want = *length
	}

	for {
		content := nodeContent(node)
		if skip >= len(content) {
			skip -= len(content)
			next := nodeNext(node)
			if next == NullAddress {
				return nil, fmt.Errorf("start past end of chain: %w", ErrOutOfRange)
			}
			nb, err := oe.pa.loadBlockAt(next)
			if err != nil {
				return nil, err
			}
			node = nb
			continue
		}

		avail := len(content) - skip
		take := avail
		if want >= 0 && want-len(out) < take {
			take = want - len(out)
		}
		out = append(out, content[skip:skip+take]...)
		skip = 0

		if want >= 0 && len(out) >= want {
			return out, nil
		}
		next := nodeNext(node)
		if next == NullAddress {
			if want >= 0 {
				return nil, fmt.Errorf("chain ended before %d bytes satisfied: %w", want, ErrOutOfRange)
			}
			return out, nil
		}
		nb, err := oe.pa.loadBlockAt(next)
		if err != nil {
			return nil, err
		}
		node = nb
	}
}

// write copies content into the chain starting at start, allocating new
// data pages as needed when the chain runs out before content is fully
// written. When cleanupAfter is true, anything beyond the last page this
// write touched is freed and the chain is truncated there.
func (oe *overflowEngine) write(head *Block, content []byte, start int, cleanupAfter bool) error {
	node := head
	skip := start
	written := 0

	for {
		nodeBuf := nodeContent(node)
		if skip >= len(nodeBuf) {
			skip -= len(nodeBuf)
			next := nodeNext(node)
			if next == NullAddress {
				addr := oe.alloc.allocate()
				nb := NewDataBlock(addr, node.Addr(), oe.pa.pageSizeOf())
				nodeSetNext(node, addr)
				oe.pa.storeBlockAt(node)
				oe.pa.storeBlockAt(nb)
				node = nb
				continue
			}
			nb, err := oe.pa.loadBlockAt(next)
			if err != nil {
				return err
			}
			node = nb
			continue
		}

		avail := len(nodeBuf) - skip
		remaining := len(content) - written
		take := avail
		if remaining < take {
			take = remaining
		}
		copy(nodeBuf[skip:skip+take], content[written:written+take])
		oe.pa.storeBlockAt(node)
		written += take
		skip = 0

		if written >= len(content) {
			if cleanupAfter {
				next := nodeNext(node)
				if err := oe.freeChainFrom(next); err != nil {
					return err
				}
				nodeSetNext(node, NullAddress)
				oe.pa.storeBlockAt(node)
			}
			oe.pa.checkCache()
			return nil
		}

		next := nodeNext(node)
		if next == NullAddress {
			addr := oe.alloc.allocate()
			nb := NewDataBlock(addr, node.Addr(), oe.pa.pageSizeOf())
			nodeSetNext(node, addr)
			oe.pa.storeBlockAt(node)
			oe.pa.storeBlockAt(nb)
			node = nb
			continue
		}
		nb, err := oe.pa.loadBlockAt(next)
		if err != nil {
			return err
		}
		node = nb
	}
}

// cleanupAfter truncates head's chain at the page covering offset: every
// page reachable beyond it is freed, and that page's next pointer is
// zeroed. If offset falls exactly at a page boundary, the page ending
// there is kept and everything after it is freed.
func (oe *overflowEngine) cleanupAfter(head *Block, offset int) error {
	node := head
	skip := offset
	for {
		content := nodeContent(node)
		if skip > len(content) {
			skip -= len(content)
			next := nodeNext(node)
			if next == NullAddress {
				return fmt.Errorf("offset past end of chain: %w", ErrOutOfRange)
			}
			nb, err := oe.pa.loadBlockAt(next)
			if err != nil {
				return err
			}
			node = nb
			continue
		}
		next := nodeNext(node)
		if err := oe.freeChainFrom(next); err != nil {
			return err
		}
		nodeSetNext(node, NullAddress)
		oe.pa.storeBlockAt(node)
		oe.pa.checkCache()
		return nil
	}
}

// freeChainFrom walks the chain starting at addr, marking every node Empty
// in the cache and returning its address to the free-list (§4.5).
func (oe *overflowEngine) freeChainFrom(addr Address) error {
	for addr != NullAddress {
		b, err := oe.pa.loadBlockAt(addr)
		if err != nil {
			return err
		}
		if b.Kind() != KindData {
			return fmt.Errorf("chain node %d has kind %s, want Data: %w", addr, b.Kind(), ErrCorruptFile)
		}
		next := b.ChainNextAddr()
		oe.pa.markEmptyAt(addr)
		if err := oe.freelist.giveBack(addr); err != nil {
			return err
		}
		addr = next
	}
	return nil
}
