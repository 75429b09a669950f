package pagestore

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/benthor/pagefile/internal/diagnostics"
)

// Options configures Open. Zero values fall back to the documented defaults.
type Options struct {
	// PageSize is the fixed page size (0 means 4096). When opening an
	// existing, non-empty file it must equal the pageSize stored in the
	// root page; a mismatch is ErrCorruptFile.
	PageSize int
	// CacheSize is the soft limit on cached blocks (§4.2). Nil defaults to
	// enough pages to cover roughly 8 MiB; an explicit 0 is honored
	// literally (every checkCache() call evicts every clean block).
	CacheSize *int
	// Create allows creating a new file when path does not exist.
	Create bool
}

const defaultPageSize = 4096
const defaultCacheBudgetBytes = 8 << 20 // 8 MiB

// Store is a paged random-access store bound to one host file.
type Store struct {
	// mu guards nothing concurrency-facing — the store is single-threaded
	// and synchronous (§5), callers serialize access externally. It exists
	// for the same defensive-internal reason the teacher's Pager keeps
	// mu sync.Mutex around its buffer-pool bookkeeping, not as a promise
	// of safe concurrent use.
	mu sync.Mutex

	file *os.File
	path string

	pageSize  int
	cacheSize int

	filePageCount   uint32 // pages physically present on disk
	memoryPageCount uint32 // authoritative in-memory page count, >= filePageCount

	cache    *blockCache
	freelist *FreeListManager
	alloc    *allocator
	overflow *overflowEngine

	root *Block

	instanceID uuid.UUID
	closed     bool

	// holders tracks, per address, which PageManager names currently
	// consider that page open (§4.6). Populated lazily; nil until a
	// manager first obtains a page.
	holders map[Address]map[string]struct{}
}

// Open opens or creates a paged store at path.
func Open(path string, opts Options) (*Store, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if !ValidPageSize(pageSize) {
		return nil, fmt.Errorf("page size %d: %w", pageSize, ErrInvalidPageSize)
	}
	var cacheSize int
	if opts.CacheSize != nil {
		cacheSize = *opts.CacheSize
	} else {
		cacheSize = defaultCacheBudgetBytes / pageSize
		if cacheSize < 1 {
			cacheSize = 1
		}
	}

	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	fileSize := fi.Size()
	if fileSize%int64(pageSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("file size %d not a multiple of page size %d: %w", fileSize, pageSize, ErrCorruptFile)
	}
	filePageCount := uint32(fileSize / int64(pageSize))

	s := &Store{
		file:            f,
		path:            path,
		pageSize:        pageSize,
		cacheSize:       cacheSize,
		filePageCount:   filePageCount,
		memoryPageCount: filePageCount,
		cache:           newBlockCache(),
		instanceID:      diagnostics.NewInstanceID(),
	}
	s.freelist = newFreeListManager(s)
	s.alloc = newAllocator(s, s.freelist)
	s.overflow = newOverflowEngine(s, s.alloc, s.freelist)

	// A freshly created file has no root on disk yet — per §3, "Root exists
	// iff the file is non-empty". It materializes lazily, the same as any
	// other page, the first time something actually touches it (rootBlock).
	if filePageCount > 0 {
		buf := make([]byte, pageSize)
		if err := s.readPageRaw(RootAddress, buf); err != nil {
			f.Close()
			return nil, err
		}
		if Kind(buf[0]) != KindRoot {
			f.Close()
			return nil, fmt.Errorf("page 0 kind %d: %w", buf[0], ErrCorruptFile)
		}
		root := loadBlock(RootAddress, buf)
		if root.RootPageSize() != pageSize {
			f.Close()
			return nil, fmt.Errorf("stored page size %d != configured %d: %w", root.RootPageSize(), pageSize, ErrCorruptFile)
		}
		s.root = root
		s.cache.set(s.root)
	}

	return s, nil
}

// ── pageAccess implementation — the narrow capability set handed to the
// free-list manager, allocator, and overflow engine (§9 design notes).

func (s *Store) pageSizeOf() int { return s.pageSize }

// rootBlock returns the root block, materializing it first (as a brand-new,
// dirty, all-zero root) if nothing has touched the store yet (§3: "Root
// exists iff the file is non-empty").
func (s *Store) rootBlock() *Block {
	if s.root == nil {
		s.root = NewRootBlock(s.pageSize, NullAddress, NullAddress)
		s.cache.set(s.root)
		if s.memoryPageCount < 1 {
			s.memoryPageCount = 1
		}
	}
	// A clean root may have been evicted, or replaced by a copy read back
	// from disk; put this block back so mutations through it reach Save.
	if f, ok := s.cache.frames[RootAddress]; !ok || f.block != s.root {
		s.cache.set(s.root)
	}
	return s.root
}

// loadBlockAt returns the block at addr, from cache or disk. The cache is
// checked before the memoryPageCount bound: a free-list node materializes
// straight into the cache via storeBlockAt/giveBack without ever passing
// through nextMemoryAddress, so an already-resident block must be readable
// regardless of where memoryPageCount currently sits. §7 scopes
// InvalidAddress to caller-provided addresses; an internal chain-walk over
// a block the store itself just wrote is never one of those.
func (s *Store) loadBlockAt(addr Address) (*Block, error) {
	if b, ok := s.cache.get(addr); ok {
		return b, nil
	}
	if uint32(addr) >= s.memoryPageCount {
		return nil, fmt.Errorf("address %d >= %d: %w", addr, s.memoryPageCount, ErrInvalidAddress)
	}
	if uint32(addr) >= s.filePageCount {
		return nil, fmt.Errorf("address %d not yet created: %w", addr, ErrRangeExceeded)
	}
	buf := make([]byte, s.pageSize)
	if err := s.readPageRaw(addr, buf); err != nil {
		return nil, err
	}
	b := loadBlock(addr, buf)
	s.cache.set(b)
	return b, nil
}

// storeBlockAt inserts or replaces a block in the cache (used both for
// freshly created blocks and for blocks mutated in place).
func (s *Store) storeBlockAt(b *Block) {
	s.cache.set(b)
}

// markEmptyAt replaces the cache entry at addr with a zeroed Empty block —
// the only way a free-list node or data page is ever recycled (§4.3, §4.5).
func (s *Store) markEmptyAt(addr Address) {
	s.cache.delete(addr)
	s.cache.set(newEmptyBlock(addr, s.pageSize))
}

// nextMemoryAddress extends the in-memory page count and returns the new
// address, used by the allocator when the free-list is empty (§4.4). Address
// 0 is permanently reserved for the root, even before it has materialized.
func (s *Store) nextMemoryAddress() Address {
	if s.memoryPageCount < 1 {
		s.memoryPageCount = 1
	}
	addr := Address(s.memoryPageCount)
	s.memoryPageCount++
	return addr
}

// checkCache trims the block cache to its soft limit after a mutation.
func (s *Store) checkCache() { s.cache.checkCache(s.cacheSize) }

// ── Raw file I/O, with retry-until-complete semantics (§4.7) ─────────────

func (s *Store) readPageRaw(addr Address, buf []byte) error {
	off := int64(addr) * int64(s.pageSize)
	return readFullAt(s.file, buf, off)
}

func (s *Store) writePageRaw(addr Address, buf []byte) error {
	off := int64(addr) * int64(s.pageSize)
	return writeFullAt(s.file, buf, off)
}

func readFullAt(f *os.File, buf []byte, off int64) error {
	total := 0
	for total < len(buf) {
		n, err := f.ReadAt(buf[total:], off+int64(total))
		if n == 0 && err != nil {
			return fmt.Errorf("read at %d: %w", off, ErrUnexpectedIO)
		}
		total += n
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			break
		}
	}
	if total != len(buf) {
		return fmt.Errorf("short read at %d: %w", off, ErrUnexpectedIO)
	}
	return nil
}

func writeFullAt(f *os.File, buf []byte, off int64) error {
	total := 0
	for total < len(buf) {
		n, err := f.WriteAt(buf[total:], off+int64(total))
		if n == 0 && err != nil {
			return fmt.Errorf("write at %d: %w", off, err)
		}
		if n == 0 {
			return fmt.Errorf("write at %d: %w", off, ErrUnexpectedIO)
		}
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

// ── Public surface (§6) ───────────────────────────────────────────────────

// PageSize returns the store's fixed page size.
func (s *Store) PageSize() int { return s.pageSize }

// InstanceID returns a random identifier stamped at Open() time, purely for
// correlating log lines across multiple open stores in one process. It is
// never persisted to disk and has no bearing on the on-disk format.
func (s *Store) InstanceID() uuid.UUID { return s.instanceID }

// Size returns the number of bytes currently persisted on disk.
func (s *Store) Size() int64 { return int64(s.filePageCount) * int64(s.pageSize) }

// UnsavedSize returns the number of bytes staged in memory but not yet
// persisted — i.e. the pages beyond the current on-disk page count.
func (s *Store) UnsavedSize() int64 {
	if s.memoryPageCount <= s.filePageCount {
		return 0
	}
	return int64(s.memoryPageCount-s.filePageCount) * int64(s.pageSize)
}

// SizeSummary renders Size/UnsavedSize as human-readable byte counts, for
// CLI and log output only.
func (s *Store) SizeSummary() (onDisk, unsaved string) {
	return diagnostics.FormatBytes(s.Size()), diagnostics.FormatBytes(s.UnsavedSize())
}

// RootPage returns a handle to the permanent root page.
func (s *Store) RootPage() (*Page, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return newPage(s, RootAddress), nil
}

// Page loads an existing entry page. If subtype is given it must match the
// page's stored subtype (TypeMismatch otherwise); with no subtype argument,
// any entry kind is accepted — the spec's deliberate "read unchecked vs.
// read typed" feature (§9 open questions).
func (s *Store) Page(addr Address, subtype ...int) (*Page, error) {
	if s.closed {
		return nil, ErrClosed
	}
	b, err := s.loadBlockAt(addr)
	if err != nil {
		return nil, err
	}
	if b.Kind() == KindEmpty {
		return nil, fmt.Errorf("page %d is empty: %w", addr, ErrEmptyPageOp)
	}
	if !b.Kind().IsEntry() {
		return nil, fmt.Errorf("page %d has kind %s, not an entry: %w", addr, b.Kind(), ErrTypeMismatch)
	}
	if len(subtype) > 0 && b.Kind().Subtype() != subtype[0] {
		return nil, fmt.Errorf("page %d has subtype %d, want %d: %w", addr, b.Kind().Subtype(), subtype[0], ErrTypeMismatch)
	}
	return newPage(s, addr), nil
}

// CreatePage allocates a new entry page with the given application subtype
// (default 0). The returned handle is dirty until Save().
func (s *Store) CreatePage(subtype ...int) (*Page, error) {
	if s.closed {
		return nil, ErrClosed
	}
	st := 0
	if len(subtype) > 0 {
		st = subtype[0]
	}
	if st < MinSubtype {
		return nil, fmt.Errorf("subtype %d: %w", st, ErrInvalidSubtype)
	}
	if st > MaxSubtype {
		return nil, fmt.Errorf("subtype %d: %w", st, ErrSubtypeTooLarge)
	}
	addr := s.alloc.allocate()
	b := NewEntryBlock(addr, st, s.pageSize)
	s.storeBlockAt(b)
	s.checkCache()
	return newPage(s, addr), nil
}

// DeletePage destroys a head page and frees its overflow chain. It is a
// no-op when addr is the root (deleting the root is illegal elsewhere, but
// §6 states deletePage(0) is simply a no-op rather than an error).
// If subtype is given, it is validated the same way Page() validates it.
func (s *Store) DeletePage(addr Address, subtype ...int) error {
	if s.closed {
		return ErrClosed
	}
	if addr == RootAddress {
		return nil
	}
	p, err := s.Page(addr, subtype...)
	if err != nil {
		return err
	}
	return p.Delete()
}

// Save flushes dirty pages to disk in least-recently-used order, then
// eagerly trims the cache. For every flushed address >= filePageCount,
// filePageCount is raised to addr+1 (§4.7).
func (s *Store) Save() error {
	if s.closed {
		return ErrClosed
	}
	dirty := s.cache.dirtyInLRUOrder()
	for _, b := range dirty {
		if uint32(b.addr) >= s.filePageCount {
			s.filePageCount = uint32(b.addr) + 1
		}
		if err := s.writePageRaw(b.addr, b.Bytes()); err != nil {
			return err
		}
		b.dirty = false
	}
	s.checkCache()
	return nil
}

// Close is idempotent; it does not implicitly save. Call Save() first if
// unsaved changes should be persisted.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
