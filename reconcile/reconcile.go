// Package reconcile walks each runlevel directory and brings its S<NN>name /
// K<NN>name symlink farm into agreement with the depths resolve computed,
// then writes the .depend.boot / .depend.start / .depend.stop makefile
// stubs consumed by packaging scripts.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	cerrors "insservgo/errors"
	"insservgo/registry"
	"insservgo/runlevel"

	"golang.org/x/sys/unix"
)

// linkPattern matches a managed S/K symlink: S07networking, K32apache2, etc.
var linkPattern = regexp.MustCompile(`^([SK])(\d{2})(.+)$`)

// Action records one filesystem change the reconciler made or would make.
type Action struct {
	Runlevel string
	Kind     string // "create", "rename", "remove"
	Link     string
	Target   string
}

// Reconciler applies resolved depths to an init script directory tree.
type Reconciler struct {
	InitDir string
	Levels  *runlevel.Map
	DryRun  bool

	Actions []Action
}

// New returns a Reconciler rooted at initDir.
func New(initDir string, levels *runlevel.Map, dryRun bool) *Reconciler {
	return &Reconciler{InitDir: initDir, Levels: levels, DryRun: dryRun}
}

// Reconcile brings every runlevel directory's link farm into agreement with
// the StartMask/StopMask/StartDepth/StopDepth of every enabled service in
// reg.
func (rc *Reconciler) Reconcile(reg *registry.Registry) error {
	services := reg.All()
	for _, level := range rc.Levels.Levels {
		if err := rc.reconcileLevel(level, services); err != nil {
			return err
		}
	}
	return nil
}

func (rc *Reconciler) reconcileLevel(level runlevel.Level, services []*registry.Service) error {
	dir := filepath.Join(rc.InitDir, level.Directory)
	if err := rc.ensureDir(dir); err != nil {
		return err
	}

	existing, err := rc.scanManaged(dir)
	if err != nil {
		return err
	}

	desired := rc.desiredLinks(level, services)

	// Create or rename links that differ from what's on disk.
	for name, want := range desired {
		have, ok := existing[name]
		linkName := fmt.Sprintf("%s%02d%s", want.prefix, want.depth, name)
		if ok && have.prefix == want.prefix && have.depth == want.depth {
			delete(existing, name)
			continue
		}
		if err := rc.createLink(dir, level.Directory, linkName, want.target); err != nil {
			return err
		}
		if ok {
			rc.recordAction(level.Directory, "rename", linkName, want.target)
			if err := rc.removeLink(dir, level.Directory, have.original); err != nil {
				return err
			}
		} else {
			rc.recordAction(level.Directory, "create", linkName, want.target)
		}
		delete(existing, name)
	}

	// Anything left in `existing` no longer belongs: remove it.
	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		have := existing[name]
		if err := rc.removeLink(dir, level.Directory, have.original); err != nil {
			return err
		}
		rc.recordAction(level.Directory, "remove", have.original, "")
	}
	return nil
}

type managedLink struct {
	prefix   string
	depth    int
	target   string
	original string
}

func (rc *Reconciler) scanManaged(dir string) (map[string]managedLink, error) {
	out := make(map[string]managedLink)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "reconcile", dir)
	}
	for _, e := range entries {
		m := linkPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		target, _ := os.Readlink(filepath.Join(dir, e.Name()))
		depth := 0
		fmt.Sscanf(m[2], "%02d", &depth)
		out[m[3]] = managedLink{prefix: m[1], depth: depth, target: target, original: e.Name()}
	}
	return out, nil
}

type wantedLink struct {
	prefix string
	depth  int
	target string
}

// noStopBit is the union of runlevels where a K-link is never created:
// halt, reboot and single-user never stop what was never properly brought
// up in the first place, so tearing services down there is left to the
// runlevel's own script sequencing rather than the link farm.
func (rc *Reconciler) noStopBit() uint16 {
	var mask uint16
	if lv, ok := rc.Levels.ByKey('0'); ok {
		mask |= lv.Bit
	}
	if lv, ok := rc.Levels.ByKey('6'); ok {
		mask |= lv.Bit
	}
	mask |= rc.Levels.SingleBit()
	return mask
}

func (rc *Reconciler) desiredLinks(level runlevel.Level, services []*registry.Service) map[string]wantedLink {
	out := make(map[string]wantedLink)
	allBit := rc.Levels.AllBit() | rc.Levels.BootBit()
	noStop := rc.noStopBit()

	for _, svc := range services {
		svc = svc.Canonical()
		if !svc.HasFlag(registry.FlagEnabled) || svc.Script == "" {
			continue
		}
		target := filepath.Join("..", "init.d", svc.Script)

		switch {
		case svc.StartMask&level.Bit != 0:
			out[svc.Name] = wantedLink{prefix: "S", depth: clampDepth(svc.StartDepth), target: target}
		case svc.StartMask&allBit != 0 && svc.StopMask&level.Bit != 0:
			// kbd is exempt from stop-link handling (its keyboard table
			// setup is never torn down by the link farm), and halt/reboot/
			// single-user never get a K-link regardless of StopMask.
			if svc.Script == "kbd" || level.Bit&noStop != 0 {
				continue
			}
			out[svc.Name] = wantedLink{prefix: "K", depth: clampDepth(svc.StopDepth), target: target}
		}
	}
	return out
}

func clampDepth(d int) int {
	if d < 0 {
		return 0
	}
	if d > 99 {
		return 99
	}
	return d
}

func (rc *Reconciler) ensureDir(dir string) error {
	if rc.DryRun {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "reconcile", dir)
	}
	return nil
}

func (rc *Reconciler) createLink(dir, runlevelName, linkName, target string) error {
	if rc.DryRun {
		return nil
	}
	path := filepath.Join(dir, linkName)
	_ = os.Remove(path) // clear any stale entry with the exact same name
	if err := unix.Symlink(target, path); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "reconcile", path)
	}
	return nil
}

func (rc *Reconciler) removeLink(dir, runlevelName, name string) error {
	if rc.DryRun {
		return nil
	}
	path := filepath.Join(dir, name)
	if err := unix.Unlink(path); err != nil && !os.IsNotExist(err) {
		return cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "reconcile", path)
	}
	return nil
}

func (rc *Reconciler) recordAction(runlevelName, kind, link, target string) {
	rc.Actions = append(rc.Actions, Action{Runlevel: runlevelName, Kind: kind, Link: link, Target: target})
}

// WriteMakefileStubs writes .depend.boot, .depend.start and .depend.stop
// into outDir: one line per enabled service naming its script and the
// scripts of every service it requires (Must and Should alike), or for
// .depend.stop of every service that requires it, in the format consumed
// by packaging build systems that shell out to make.
func WriteMakefileStubs(reg *registry.Registry, levels *runlevel.Map, outDir string) error {
	boot := filepath.Join(outDir, ".depend.boot")
	start := filepath.Join(outDir, ".depend.start")
	stop := filepath.Join(outDir, ".depend.stop")

	if err := writeStub(boot, reg, levels.BootBit(), false); err != nil {
		return err
	}
	if err := writeStub(start, reg, levels.AllBit(), false); err != nil {
		return err
	}
	if err := writeStub(stop, reg, levels.NormBit(), true); err != nil {
		return err
	}
	return nil
}

func writeStub(path string, reg *registry.Registry, mask uint16, stop bool) error {
	var b strings.Builder
	for _, svc := range reg.All() {
		svc = svc.Canonical()
		if !svc.HasFlag(registry.FlagEnabled) || svc.Script == "" {
			continue
		}
		if svc.StartMask&mask == 0 {
			continue
		}
		edges := svc.Required
		if stop {
			edges = svc.Reverse
		}
		deps := make([]string, 0, len(edges))
		for _, e := range edges {
			dep, ok := reg.Find(e.Target)
			if !ok || dep.Script == "" {
				continue
			}
			deps = append(deps, dep.Canonical().Script)
		}
		fmt.Fprintf(&b, "%s:", svc.Script)
		for _, d := range deps {
			fmt.Fprintf(&b, " %s", d)
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "reconcile", path)
	}
	return nil
}
