package pagestore

import "fmt"

// Page is a user-visible handle to a logical page (root or entry head).
// Every method except Addr and IsRoot fails ErrUseAfterRelease once the
// handle has been released by its own Delete (or release). A PageManager's
// Release/ReleaseAll does not release handles already returned. The
// store's own block cache already gives repeated operations on the same
// chain the "reuse decoded blocks across calls" behavior §4.6 describes
// for a per-handle cache, so Page itself stays a thin address + store pair.
type Page struct {
	store    *Store
	addr     Address
	released bool
}

func newPage(s *Store, addr Address) *Page {
	return &Page{store: s, addr: addr}
}

func (p *Page) head() (*Block, error) {
	if p.released {
		return nil, ErrUseAfterRelease
	}
	if p.addr == RootAddress {
		return p.store.rootBlock(), nil
	}
	return p.store.loadBlockAt(p.addr)
}

// Addr returns the page's address.
func (p *Page) Addr() Address { return p.addr }

// IsRoot reports whether this handle refers to the permanent root page.
func (p *Page) IsRoot() bool { return p.addr == RootAddress }

// Type returns the page's on-disk kind.
func (p *Page) Type() (Kind, error) {
	b, err := p.head()
	if err != nil {
		return 0, err
	}
	return b.Kind(), nil
}

// ByteLength returns the logical length of the page: its head content
// capacity plus the capacities of every reachable overflow page.
func (p *Page) ByteLength() (int, error) {
	b, err := p.head()
	if err != nil {
		return 0, err
	}
	return p.store.overflow.byteLength(b)
}

// Read returns length bytes starting at start. Omitting length (passing a
// negative value) reads through to the end of the logical page.
func (p *Page) Read(start int, length int) ([]byte, error) {
	b, err := p.head()
	if err != nil {
		return nil, err
	}
	var lp *int
	if length >= 0 {
		lp = &length
	}
	return p.store.overflow.read(b, start, lp)
}

// ReadAll reads the entire logical page from offset 0.
func (p *Page) ReadAll() ([]byte, error) {
	return p.Read(0, -1)
}

// Write copies content into the page starting at offset, growing the
// overflow chain as needed but never shrinking it.
func (p *Page) Write(content []byte, offset int) error {
	b, err := p.head()
	if err != nil {
		return err
	}
	if err := p.store.overflow.write(b, content, offset, false); err != nil {
		return err
	}
	p.store.checkCache()
	return nil
}

// WriteAndCleanup is Write followed by truncating the chain immediately
// after the written range.
func (p *Page) WriteAndCleanup(content []byte, offset int) error {
	b, err := p.head()
	if err != nil {
		return err
	}
	if err := p.store.overflow.write(b, content, offset, true); err != nil {
		return err
	}
	p.store.checkCache()
	return nil
}

// CleanupAfter truncates the overflow chain at the page covering offset,
// freeing everything beyond it.
func (p *Page) CleanupAfter(offset int) error {
	b, err := p.head()
	if err != nil {
		return err
	}
	if err := p.store.overflow.cleanupAfter(b, offset); err != nil {
		return err
	}
	p.store.checkCache()
	return nil
}

// Delete destroys the page and recursively frees its overflow chain. It is
// illegal to call on the root; DeletePage on the store handles that case
// (a no-op) before ever constructing a handle for it, but a defensive
// guard stays here since Page objects can outlive the call that made them.
func (p *Page) Delete() error {
	b, err := p.head()
	if err != nil {
		return err
	}
	if p.addr == RootAddress {
		return fmt.Errorf("cannot delete the root page: %w", ErrTypeMismatch)
	}
	next := nodeNext(b)
	if err := p.store.overflow.freeChainFrom(next); err != nil {
		return err
	}
	p.store.markEmptyAt(p.addr)
	if err := p.store.freelist.giveBack(p.addr); err != nil {
		return err
	}
	p.store.checkCache()
	p.released = true
	return nil
}

// release marks the handle unusable without touching on-disk state.
// PageManager does not call it; manager releases only update the store's
// hold bookkeeping.
func (p *Page) release() { p.released = true }
