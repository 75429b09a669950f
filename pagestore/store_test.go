package pagestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// Structure mirrors pagestore/testdata/scenarios.yaml
type scenarioFixture struct {
	Scenarios []struct {
		ID         string   `yaml:"id"`
		ExpectDump []string `yaml:"expectDump"`
	} `yaml:"scenarios"`
}

func loadScenarios(t *testing.T) map[string][]string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "scenarios.yaml"))
	if err != nil {
		t.Fatalf("read scenarios.yaml: %v", err)
	}
	var fx scenarioFixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		t.Fatalf("parse scenarios.yaml: %v", err)
	}
	out := make(map[string][]string, len(fx.Scenarios))
	for _, s := range fx.Scenarios {
		out[s.ID] = s.ExpectDump
	}
	return out
}

func intp(n int) *int { return &n }

func newTestPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.store")
}

func openTest(t *testing.T, path string, opts Options) *Store {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 256
	}
	opts.Create = true
	s, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func assertDump(t *testing.T, s *Store, want []string) {
	t.Helper()
	got, err := s.Debug()
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("dump length: got %d want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dump[%d]: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestScenario_EmptyLifecycle(t *testing.T) {
	dumps := loadScenarios(t)
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertDump(t, s, dumps["empty_lifecycle"])
	if s.Size() != 0 {
		t.Fatalf("size: got %d want 0", s.Size())
	}
}

func TestScenario_RootMaterialisation(t *testing.T) {
	dumps := loadScenarios(t)
	s := openTest(t, newTestPath(t), Options{})
	root, err := s.RootPage()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := root.ReadAll(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertDump(t, s, dumps["root_materialisation"])
}

func TestScenario_RootWrite3Bytes(t *testing.T) {
	dumps := loadScenarios(t)
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	root, err := s.RootPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Write([]byte{255, 255, 255}, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2 := openTest(t, path, Options{})
	root2, err := s2.RootPage()
	if err != nil {
		t.Fatal(err)
	}
	got, err := root2.Read(0, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte{255, 255, 255}) {
		t.Fatalf("got %v want [255 255 255]", got)
	}
	assertDump(t, s2, dumps["root_write_3_bytes"])
}

func TestScenario_RootSpill(t *testing.T) {
	dumps := loadScenarios(t)
	s := openTest(t, newTestPath(t), Options{})
	root, err := s.RootPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Write(make([]byte, 300), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertDump(t, s, dumps["root_spill"])
}

func TestScenario_RootSpillAtOffset(t *testing.T) {
	dumps := loadScenarios(t)
	s := openTest(t, newTestPath(t), Options{})
	root, err := s.RootPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Write(make([]byte, 300), 260); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertDump(t, s, dumps["root_spill_at_offset"])
}

func TestScenario_EntryCreateAndSpill(t *testing.T) {
	dumps := loadScenarios(t)
	s := openTest(t, newTestPath(t), Options{})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Write(make([]byte, 300), 260); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertDump(t, s, dumps["entry_create_and_spill"])
}

func TestScenario_CustomSubtypeRoundTrip(t *testing.T) {
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	p, err := s.CreatePage(42)
	if err != nil {
		t.Fatal(err)
	}
	content := make([]byte, 300)
	for i := 0; i < 10; i++ {
		content[i] = byte(i)
	}
	if err := p.Write(content, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	addr := p.Addr()
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2 := openTest(t, path, Options{})
	p2, err := s2.Page(addr, 42)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	got, err := p2.Read(0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := 0; i < 10; i++ {
		if got[i] != byte(i) {
			t.Fatalf("byte %d: got %d want %d", i, got[i], i)
		}
	}
}

func TestScenario_CacheZeroWritePath(t *testing.T) {
	path := newTestPath(t)
	s := openTest(t, path, Options{CacheSize: intp(0)})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	content := make([]byte, 300)
	for i := 0; i < 10; i++ {
		content[i] = byte(100 + i)
	}
	if err := p.Write(content, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := p.Read(0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := 0; i < 10; i++ {
		if got[i] != byte(100+i) {
			t.Fatalf("byte %d: got %d want %d", i, got[i], 100+i)
		}
	}
}

// ── Universal properties (§8) ────────────────────────────────────────────

func TestProperty_RoundTrip(t *testing.T) {
	s := openTest(t, newTestPath(t), Options{})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{0xAB}, 500)
	if err := p.Write(want, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := p.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestProperty_OffsetRoundTrip(t *testing.T) {
	s := openTest(t, newTestPath(t), Options{})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("hello, overflow")
	if err := p.Write(want, 400); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := p.Read(400, len(want))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestProperty_PersistenceAcrossReopen(t *testing.T) {
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{0x7E}, 600)
	if err := p.Write(want, 0); err != nil {
		t.Fatal(err)
	}
	addr := p.Addr()
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2 := openTest(t, path, Options{})
	p2, err := s2.Page(addr)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p2.Read(0, len(want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("persisted bytes differ")
	}
}

func TestProperty_UnsavedIsolation(t *testing.T) {
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	p, err := s.CreatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Write([]byte("not saved"), 0); err != nil {
		t.Fatal(err)
	}
	addr := p.Addr()
	s.Close()

	s2 := openTest(t, path, Options{})
	if _, err := s2.Page(addr); err == nil {
		t.Fatal("expected the unsaved page to not exist after reopen")
	}
}

func TestProperty_AddressStability(t *testing.T) {
	path := newTestPath(t)
	s := openTest(t, path, Options{})
	p, err := s.CreatePage(7)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("stable")
	if err := p.Write(want, 0); err != nil {
		t.Fatal(err)
	}
	addr := p.Addr()
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2 := openTest(t, path, Options{})
	p2, err := s2.Page(addr, 7)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Addr() != addr {
		t.Fatalf("addr: got %d want %d", p2.Addr(), addr)
	}
	got, err := p2.Read(0, len(want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("bytes differ after reopen")
	}
}

func TestProperty_SpaceReuse(t *testing.T) {
	s := openTest(t, newTestPath(t), Options{})
	const n = 5
	addrs := make([]Address, n)
	for i := 0; i < n; i++ {
		p, err := s.CreatePage()
		if err != nil {
			t.Fatal(err)
		}
		addrs[i] = p.Addr()
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	peak := s.filePageCount

	for _, a := range addrs {
		if err := s.DeletePage(a); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		if _, err := s.CreatePage(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if s.filePageCount > peak {
		t.Fatalf("filePageCount %d exceeds first peak %d", s.filePageCount, peak)
	}
}

func TestProperty_ChainAndFreeListIntegrity(t *testing.T) {
	s := openTest(t, newTestPath(t), Options{})
	var addrs []Address
	for i := 0; i < 4; i++ {
		p, err := s.CreatePage()
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Write(make([]byte, 500), 0); err != nil {
			t.Fatal(err)
		}
		addrs = append(addrs, p.Addr())
	}
	if err := s.DeletePage(addrs[1]); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	issues, err := s.VerifyStore()
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) > 0 {
		t.Fatalf("verify issues: %v", issues)
	}
}

func TestProperty_TypePreservation(t *testing.T) {
	s := openTest(t, newTestPath(t), Options{})
	p, err := s.CreatePage(9)
	if err != nil {
		t.Fatal(err)
	}
	kind, err := p.Type()
	if err != nil {
		t.Fatal(err)
	}
	if kind.Subtype() != 9 {
		t.Fatalf("subtype: got %d want 9", kind.Subtype())
	}
	if _, err := s.Page(p.Addr(), 3); err == nil {
		t.Fatal("expected TypeMismatch for the wrong subtype")
	}
	if err := p.Delete(); err != nil {
		t.Fatal(err)
	}
}
