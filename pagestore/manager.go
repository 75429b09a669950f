package pagestore

// PageManager is a named reference holder over pages from one Store.
// Multiple managers may observe the same page; the store calls
// notifyClosed for an address once every manager that ever observed it has
// released it (§4.6, and the "notifyClosed" capability named in §9's
// design notes). The Store keeps no manager of its own: RootPage/Page/
// CreatePage called directly on the Store record no hold, and no manager's
// release ever tears down a Page handle.
type PageManager struct {
	name  string
	store *Store
}

// NewManager returns a named reference holder over s.
func (s *Store) NewManager(name string) *PageManager {
	return &PageManager{name: name, store: s}
}

// Release drops this manager's hold on addr. Once no manager holds an
// address, the store is notified (an opportunity to trim the cache); the
// Page handles already returned to callers are unaffected by this — per
// §4.6 a handle's own Delete() is what makes *that* handle fail
// UseAfterRelease, while the manager layer is bookkeeping for when a page
// is no longer referenced by any subsystem.
func (m *PageManager) Release(addr Address) {
	m.store.releaseHold(addr, m.name)
}

// ReleaseAll drops every hold this manager has taken out.
func (m *PageManager) ReleaseAll() {
	m.store.releaseAllHolds(m.name)
}

func (m *PageManager) RootPage() (*Page, error) {
	p, err := m.store.RootPage()
	if err == nil {
		m.store.observeHold(p.addr, m.name)
	}
	return p, err
}

func (m *PageManager) Page(addr Address, subtype ...int) (*Page, error) {
	p, err := m.store.Page(addr, subtype...)
	if err == nil {
		m.store.observeHold(p.addr, m.name)
	}
	return p, err
}

func (m *PageManager) CreatePage(subtype ...int) (*Page, error) {
	p, err := m.store.CreatePage(subtype...)
	if err == nil {
		m.store.observeHold(p.addr, m.name)
	}
	return p, err
}

func (m *PageManager) DeletePage(addr Address, subtype ...int) error {
	if err := m.store.DeletePage(addr, subtype...); err != nil {
		return err
	}
	m.store.releaseHold(addr, m.name)
	return nil
}

// ── Store-side bookkeeping ────────────────────────────────────────────────

func (s *Store) observeHold(addr Address, manager string) {
	if s.holders == nil {
		s.holders = make(map[Address]map[string]struct{})
	}
	set, ok := s.holders[addr]
	if !ok {
		set = make(map[string]struct{})
		s.holders[addr] = set
	}
	set[manager] = struct{}{}
}

func (s *Store) releaseHold(addr Address, manager string) {
	set, ok := s.holders[addr]
	if !ok {
		return
	}
	delete(set, manager)
	if len(set) == 0 {
		delete(s.holders, addr)
		s.notifyClosed(addr)
	}
}

func (s *Store) releaseAllHolds(manager string) {
	for addr, set := range s.holders {
		if _, ok := set[manager]; !ok {
			continue
		}
		delete(set, manager)
		if len(set) == 0 {
			delete(s.holders, addr)
			s.notifyClosed(addr)
		}
	}
}

// notifyClosed is called once no manager holds addr any longer. The block
// cache already evicts purely on the LRU/dirty rule of §4.2, so there is
// nothing mandatory to do here beyond giving checkCache a chance to run.
func (s *Store) notifyClosed(addr Address) {
	s.checkCache()
}
