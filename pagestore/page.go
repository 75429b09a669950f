// Package pagestore implements a paged random-access store on top of a
// single host file. The file is split into fixed-size pages; each page
// carries a kind byte (root, free-list, data, or an application-defined
// entry) and a small typed header. A logical page — the bytes the caller
// sees through a Page handle — is the concatenation of a head page's
// content with an overflow chain of data pages, grown and shrunk lazily
// as the caller writes.
package pagestore

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Address identifies a page within a Store. Address 0 is always the root
// page; everywhere else a 0 in a header field means "no neighbor".
type Address uint16

// RootAddress is the address of the permanent root page.
const RootAddress Address = 0

// NullAddress is the sentinel used in header fields for "no next"/"no prev".
const NullAddress Address = 0

// Kind is the first byte of every page on disk.
type Kind uint8

const (
	KindEmpty    Kind = 0
	KindRoot     Kind = 1
	KindFreeList Kind = 2
	KindData     Kind = 3
	kindEntryMin Kind = 4
)

// Subtype bounds, per the external entry-subtype encoding (kind = 4+subtype).
const (
	MinSubtype = 0
	MaxSubtype = 251
)

// EntryKind returns the on-disk kind byte for an application subtype.
func EntryKind(subtype int) Kind { return Kind(int(kindEntryMin) + subtype) }

// IsEntry reports whether k denotes an application-owned entry page.
func (k Kind) IsEntry() bool { return k >= kindEntryMin }

// Subtype returns the application subtype encoded by an entry kind.
// Only meaningful when IsEntry() is true.
func (k Kind) Subtype() int { return int(k) - int(kindEntryMin) }

func (k Kind) String() string {
	switch {
	case k == KindEmpty:
		return "Empty"
	case k == KindRoot:
		return "Root"
	case k == KindFreeList:
		return "FreeList"
	case k == KindData:
		return "Data"
	case k.IsEntry():
		return fmt.Sprintf("Entry(%d)", k)
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Allowed page sizes, per the on-disk format contract.
var allowedPageSizes = [...]int{256, 512, 1024, 2048, 4096, 8192, 16384, 32768}

// ValidPageSize reports whether size is one of the allowed page sizes.
func ValidPageSize(size int) bool {
	for _, s := range allowedPageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// ───────────────────────────────────────────────────────────────────────────
// Error kinds (§7)
// ───────────────────────────────────────────────────────────────────────────

var (
	ErrCorruptFile     = errors.New("corrupt file")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrRangeExceeded   = errors.New("range exceeded")
	ErrOutOfRange      = errors.New("out of range")
	ErrUseAfterRelease = errors.New("use after release")
	ErrClosed          = errors.New("store closed")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidSubtype  = errors.New("invalid subtype")
	ErrSubtypeTooLarge = errors.New("subtype too large")
	ErrEmptyPageOp     = errors.New("operation on empty page")
	ErrUnexpectedIO    = errors.New("unexpected io result")
)

// ───────────────────────────────────────────────────────────────────────────
// Header layout (§3) — byte offsets after the 1-byte kind.
// ───────────────────────────────────────────────────────────────────────────

const (
	// Root: pageSize:u16, firstFreelistAddr:u16, nextOverflowAddr:u16.
	rootPageSizeOff         = 1
	rootFirstFreelistOff    = 3
	rootNextOverflowOff     = 5
	rootHeaderLen           = 6
	rootTotalHeaderLen      = 1 + rootHeaderLen

	// Free-list: prevAddr:u16, nextAddr:u16, count:u16, then count*u16.
	freeListPrevOff    = 1
	freeListNextOff    = 3
	freeListCountOff   = 5
	freeListFixedLen   = 6
	freeListHeaderLen  = 1 + freeListFixedLen
	freeListEntrySize  = 2

	// Data / Entry: prevAddr:u16, nextOverflowAddr:u16.
	chainPrevOff      = 1
	chainNextOff      = 3
	chainHeaderLen    = 4
	chainTotalHeaderLen = 1 + chainHeaderLen
)

// RootContentCapacity returns the content bytes available on a root page.
func RootContentCapacity(pageSize int) int { return pageSize - rootTotalHeaderLen }

// ChainContentCapacity returns the content bytes available on a data or
// entry page (both share the same header shape).
func ChainContentCapacity(pageSize int) int { return pageSize - chainTotalHeaderLen }

// FreeListCapacity returns how many addresses fit in one free-list page.
func FreeListCapacity(pageSize int) int {
	return (pageSize - freeListHeaderLen) / freeListEntrySize
}

func be16(b []byte) uint16           { return binary.BigEndian.Uint16(b) }
func putBE16(b []byte, v uint16)     { binary.BigEndian.PutUint16(b, v) }

// ───────────────────────────────────────────────────────────────────────────
// Block — the decoded, cached representation of one page.
// ───────────────────────────────────────────────────────────────────────────

// Block is the in-memory decoded form of a single page. It is the unit the
// block cache stores; Page handles and the overflow engine operate on it
// through the typed accessors below. A Block is constructed in one of two
// modes: "new" (dirty, caller-stamped header) via the NewXBlock functions,
// or "loaded" (clean, wrapping the on-disk buffer) via loadBlock. loadBlock
// does not validate the header; callers check Kind() where it matters.
type Block struct {
	addr  Address
	buf   []byte
	dirty bool
}

// Addr returns the page's address.
func (b *Block) Addr() Address { return b.addr }

// Kind returns the page's on-disk kind.
func (b *Block) Kind() Kind { return Kind(b.buf[0]) }

// Dirty reports whether the block differs from its on-disk image.
func (b *Block) Dirty() bool { return b.dirty }

// Bytes returns the raw page buffer (header + content), for I/O only.
func (b *Block) Bytes() []byte { return b.buf }

func (b *Block) markDirty() { b.dirty = true }

// newEmptyBlock returns a freshly zeroed Empty block at addr. Empty blocks
// carry no content; they exist only as cache placeholders for unused pages.
func newEmptyBlock(addr Address, pageSize int) *Block {
	return &Block{addr: addr, buf: make([]byte, pageSize), dirty: true}
}

// loadBlock wraps pre-existing page bytes (read from disk) as a clean Block.
func loadBlock(addr Address, buf []byte) *Block {
	return &Block{addr: addr, buf: buf, dirty: false}
}

// ───────────────────────────────────────────────────────────────────────────
// Root accessors
// ───────────────────────────────────────────────────────────────────────────

// NewRootBlock stamps a brand-new root page header into buf (address 0).
func NewRootBlock(pageSize int, firstFreelistAddr, nextOverflowAddr Address) *Block {
	b := &Block{addr: RootAddress, buf: make([]byte, pageSize), dirty: true}
	b.buf[0] = byte(KindRoot)
	putBE16(b.buf[rootPageSizeOff:], uint16(pageSize))
	putBE16(b.buf[rootFirstFreelistOff:], uint16(firstFreelistAddr))
	putBE16(b.buf[rootNextOverflowOff:], uint16(nextOverflowAddr))
	return b
}

func (b *Block) RootPageSize() int { return int(be16(b.buf[rootPageSizeOff:])) }

func (b *Block) RootFirstFreelistAddr() Address { return Address(be16(b.buf[rootFirstFreelistOff:])) }

func (b *Block) SetRootFirstFreelistAddr(a Address) {
	putBE16(b.buf[rootFirstFreelistOff:], uint16(a))
	b.markDirty()
}

func (b *Block) RootNextOverflowAddr() Address { return Address(be16(b.buf[rootNextOverflowOff:])) }

func (b *Block) SetRootNextOverflowAddr(a Address) {
	putBE16(b.buf[rootNextOverflowOff:], uint16(a))
	b.markDirty()
}

func (b *Block) RootContent() []byte { return b.buf[rootTotalHeaderLen:] }

// ───────────────────────────────────────────────────────────────────────────
// Free-list accessors
// ───────────────────────────────────────────────────────────────────────────

// NewFreeListBlock stamps a brand-new, empty free-list page at addr.
func NewFreeListBlock(addr Address, pageSize int) *Block {
	b := &Block{addr: addr, buf: make([]byte, pageSize), dirty: true}
	b.buf[0] = byte(KindFreeList)
	putBE16(b.buf[freeListPrevOff:], uint16(NullAddress))
	putBE16(b.buf[freeListNextOff:], uint16(NullAddress))
	putBE16(b.buf[freeListCountOff:], 0)
	return b
}

func (b *Block) FreeListPrevAddr() Address { return Address(be16(b.buf[freeListPrevOff:])) }

func (b *Block) SetFreeListPrevAddr(a Address) {
	putBE16(b.buf[freeListPrevOff:], uint16(a))
	b.markDirty()
}

func (b *Block) FreeListNextAddr() Address { return Address(be16(b.buf[freeListNextOff:])) }

func (b *Block) SetFreeListNextAddr(a Address) {
	putBE16(b.buf[freeListNextOff:], uint16(a))
	b.markDirty()
}

func (b *Block) FreeListCount() int { return int(be16(b.buf[freeListCountOff:])) }

func (b *Block) freeListEntryOff(i int) int {
	return freeListHeaderLen + i*freeListEntrySize
}

// FreeListEntry returns the i-th stored address (0 <= i < FreeListCount()).
func (b *Block) FreeListEntry(i int) Address {
	off := b.freeListEntryOff(i)
	return Address(be16(b.buf[off:]))
}

// FreeListPush appends addr as the last slot. Caller must ensure capacity.
func (b *Block) FreeListPush(addr Address) {
	n := b.FreeListCount()
	off := b.freeListEntryOff(n)
	putBE16(b.buf[off:], uint16(addr))
	putBE16(b.buf[freeListCountOff:], uint16(n+1))
	b.markDirty()
}

// FreeListPop removes and returns the last slot's address.
func (b *Block) FreeListPop() Address {
	n := b.FreeListCount()
	off := b.freeListEntryOff(n - 1)
	addr := Address(be16(b.buf[off:]))
	putBE16(b.buf[freeListCountOff:], uint16(n-1))
	b.markDirty()
	return addr
}

// ───────────────────────────────────────────────────────────────────────────
// Data accessors
// ───────────────────────────────────────────────────────────────────────────

// NewDataBlock stamps a brand-new data page, linked to prevAddr.
func NewDataBlock(addr, prevAddr Address, pageSize int) *Block {
	b := &Block{addr: addr, buf: make([]byte, pageSize), dirty: true}
	b.buf[0] = byte(KindData)
	putBE16(b.buf[chainPrevOff:], uint16(prevAddr))
	putBE16(b.buf[chainNextOff:], uint16(NullAddress))
	return b
}

func (b *Block) ChainPrevAddr() Address { return Address(be16(b.buf[chainPrevOff:])) }

func (b *Block) SetChainPrevAddr(a Address) {
	putBE16(b.buf[chainPrevOff:], uint16(a))
	b.markDirty()
}

func (b *Block) ChainNextAddr() Address { return Address(be16(b.buf[chainNextOff:])) }

func (b *Block) SetChainNextAddr(a Address) {
	putBE16(b.buf[chainNextOff:], uint16(a))
	b.markDirty()
}

func (b *Block) ChainContent() []byte { return b.buf[chainTotalHeaderLen:] }

// ───────────────────────────────────────────────────────────────────────────
// Entry accessors
// ───────────────────────────────────────────────────────────────────────────

// NewEntryBlock stamps a brand-new entry page of the given application subtype.
func NewEntryBlock(addr Address, subtype int, pageSize int) *Block {
	b := &Block{addr: addr, buf: make([]byte, pageSize), dirty: true}
	b.buf[0] = byte(EntryKind(subtype))
	putBE16(b.buf[chainPrevOff:], uint16(NullAddress))
	putBE16(b.buf[chainNextOff:], uint16(NullAddress))
	return b
}

// SetEntrySubtype changes the entry's application subtype in place. The
// kind category (Entry) cannot change, only which subtype it encodes.
func (b *Block) SetEntrySubtype(subtype int) {
	b.buf[0] = byte(EntryKind(subtype))
	b.markDirty()
}

// ───────────────────────────────────────────────────────────────────────────
// Generic chain-node view, shared by the overflow engine (§4.5). A chain
// node is any block that can sit in an overflow chain: a head (Root or
// Entry) or a Data page. Root has its own field names; Entry and Data
// share the same layout, so these three dispatch on Kind() alone.
// ───────────────────────────────────────────────────────────────────────────

// nodeContent returns the content slice of a chain node (head or data page).
func nodeContent(b *Block) []byte {
	if b.Kind() == KindRoot {
		return b.RootContent()
	}
	return b.ChainContent()
}

// nodeNext returns a chain node's overflow-chain pointer.
func nodeNext(b *Block) Address {
	if b.Kind() == KindRoot {
		return b.RootNextOverflowAddr()
	}
	return b.ChainNextAddr()
}

// nodeSetNext sets a chain node's overflow-chain pointer.
func nodeSetNext(b *Block, a Address) {
	if b.Kind() == KindRoot {
		b.SetRootNextOverflowAddr(a)
		return
	}
	b.SetChainNextAddr(a)
}

func isHeadKind(k Kind) bool { return k == KindRoot || k.IsEntry() }
