package runlevel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewMap_SUSE(t *testing.T) {
	m := NewMap(DialectSUSE)

	if !m.HasBootLevel {
		t.Error("SUSE dialect should have a distinct boot level")
	}
	if m.UseStopTags {
		t.Error("SUSE dialect should mirror stop order, not use stop tags")
	}

	lv, ok := m.ByKey('B')
	if !ok || lv.Directory != "boot.d" || !lv.Boot {
		t.Errorf("expected boot.d for key 'B', got %+v ok=%v", lv, ok)
	}

	lv, ok = m.ByKey('S')
	if !ok || lv.Directory != "rcS.d" || lv.Boot {
		t.Errorf("expected rcS.d (non-boot) for key 'S', got %+v ok=%v", lv, ok)
	}
}

func TestNewMap_Debian(t *testing.T) {
	m := NewMap(DialectDebian)

	if m.HasBootLevel {
		t.Error("Debian dialect has no distinct boot.d")
	}
	if !m.UseStopTags {
		t.Error("Debian dialect should honor explicit stop tags")
	}

	lv, ok := m.ByKey('S')
	if !ok || lv.Directory != "rcS.d" || !lv.Boot {
		t.Errorf("expected rcS.d to play the boot role under Debian, got %+v ok=%v", lv, ok)
	}
}

func TestByDirectory(t *testing.T) {
	m := NewMap(DialectSUSE)
	lv, ok := m.ByDirectory("rc3.d")
	if !ok || lv.Key != '3' {
		t.Errorf("ByDirectory(rc3.d) = %+v, ok=%v", lv, ok)
	}

	if _, ok := m.ByDirectory("rc9.d"); ok {
		t.Error("rc9.d should not exist")
	}
}

func TestAllBitExcludesBoot(t *testing.T) {
	m := NewMap(DialectSUSE)
	all := m.AllBit()
	boot := m.BootBit()

	if all&boot != 0 {
		t.Error("AllBit should not include the boot bit")
	}

	full := m.FullBit()
	if full&boot == 0 {
		t.Error("FullBit should include the boot bit")
	}
	if full != all|boot {
		t.Error("FullBit should equal AllBit | BootBit")
	}
}

func TestKeysToMaskRoundTrip(t *testing.T) {
	m := NewMap(DialectSUSE)
	keys := []byte{'2', '3', '5'}
	mask := m.KeysToMask(keys)

	got := m.MaskToKeys(mask)
	if len(got) != 3 || string(got) != "235" {
		t.Errorf("MaskToKeys(KeysToMask(%q)) = %q", keys, got)
	}
}

func TestKeysToMaskIgnoresUnknown(t *testing.T) {
	m := NewMap(DialectSUSE)
	mask := m.KeysToMask([]byte{'3', 'x'})
	if mask != (uint16(1) << 3) {
		t.Errorf("expected only bit for '3', got %b", mask)
	}
}

func TestNormBitExcludesSingleUser(t *testing.T) {
	m := NewMap(DialectSUSE)
	single := m.SingleBit()
	if single == 0 {
		t.Fatal("expected SUSE to have a distinct single-user bit")
	}
	norm := m.NormBit()
	if norm&single != 0 {
		t.Error("NormBit should exclude the single-user level")
	}
	if norm|single != m.AllBit() {
		t.Error("NormBit plus the single-user bit should equal AllBit")
	}
}

func TestNormBitDebianHasNoSeparateSingle(t *testing.T) {
	m := NewMap(DialectDebian)
	if m.SingleBit() != 0 {
		t.Error("Debian's rcS.d plays the boot role, so there is no separate single-user bit")
	}
	if m.NormBit() != m.AllBit() {
		t.Error("without a distinct single-user level, NormBit should equal AllBit")
	}
}

func TestDetectDialect(t *testing.T) {
	suseDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(suseDir, "boot.d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DetectDialect(suseDir); got != DialectSUSE {
		t.Errorf("DetectDialect(with boot.d) = %v, want SUSE", got)
	}

	debianDir := t.TempDir()
	if got := DetectDialect(debianDir); got != DialectDebian {
		t.Errorf("DetectDialect(without boot.d) = %v, want Debian", got)
	}
}

func TestDialectString(t *testing.T) {
	if DialectSUSE.String() != "suse" {
		t.Errorf("DialectSUSE.String() = %q", DialectSUSE.String())
	}
	if DialectDebian.String() != "debian" {
		t.Errorf("DialectDebian.String() = %q", DialectDebian.String())
	}
}
