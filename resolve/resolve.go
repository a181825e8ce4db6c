// Package resolve computes the start and stop depth of every service in a
// registry: the same depth-first propagation the original tool performs
// once per dialect's well-known re-pin table, with cycle detection and a
// hard depth cap of 99.
package resolve

import (
	"fmt"
	"sort"

	cerrors "insservgo/errors"
	"insservgo/registry"
	"insservgo/runlevel"
)

// MaxDepth is the hard cap on any computed start/stop depth. Exceeding it
// on a final pass is a fatal configuration error; exceeding it mid-traversal
// just abandons that branch with a warning.
const MaxDepth = 99

// Warning is a non-fatal problem surfaced during resolution: a dependency
// cycle or a traversal path abandoned at the depth cap.
type Warning struct {
	Service string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Service, w.Message)
}

// Resolver computes start and stop depths over a registry.
type Resolver struct {
	Reg      *registry.Registry
	Levels   *runlevel.Map
	MaxOrder int

	Warnings []Warning
}

// New returns a Resolver bound to reg and levels.
func New(reg *registry.Registry, levels *runlevel.Map) *Resolver {
	return &Resolver{Reg: reg, Levels: levels}
}

// ResolveStart runs the full start-depth pipeline: depth-first propagation
// from every service, placeholder depth guessing, non-LSB fixup, interactive
// isolation and $all placement. Well-known re-pinning is a separate step,
// ApplyWellKnownPins. It must be called before ResolveStop.
func (r *Resolver) ResolveStart() error {
	for _, svc := range r.Reg.All() {
		r.visitStart(svc, svc.MinStartDepth, true)
	}
	r.guessAll()
	r.computeMaxOrder()
	r.nonLSBFixup()
	r.interactiveIsolation()
	r.allPlacement()
	return r.checkOverflow()
}

// ApplyWellKnownPins raises the small set of services the original tool
// always re-pins to at least a fixed depth, regardless of what their own
// headers declare, bumping their dependents so they stay deeper, then
// reapplies the two post-follow stability pins that depend on those depths.
func (r *Resolver) ApplyWellKnownPins(dialect runlevel.Dialect) {
	switch dialect {
	case runlevel.DialectDebian:
		r.pinAndClearNotLSB("checkroot.sh", 10)
		r.pinAndClearNotLSB("checkfs.sh", 30)
		r.pinAndClearNotLSB("networking", 40)
		r.pinAndClearNotLSB("mountnfs.sh", 45)
		r.pinAndClearNotLSB("single", 90)
	default:
		r.pinAndClearNotLSB("network", 5)
		r.pinAndClearNotLSB("inetd", 20)
		r.pinAndClearNotLSB("halt", 20)
		r.pinAndClearNotLSB("reboot", 20)
		r.pinAndClearNotLSB("single", 20)
		r.pinAndClearNotLSB("serial", 10)
		r.pinAndClearNotLSB("gpm", 20)
		r.SetOrder("boot.setup", 20, false)
	}

	if netDepth, ok := r.GetOrder("network"); ok {
		r.SetOrder("route", netDepth+2, true)
	}
	if kbdDepth, ok := r.GetOrder("kbd"); ok {
		r.SetOrder("single", kbdDepth+2, true)
	}
}

func (r *Resolver) pinAndClearNotLSB(name string, depth int) {
	r.SetOrder(name, depth, true)
	if svc, ok := r.Reg.Find(name); ok {
		svc.ClearFlag(registry.FlagNotLSB)
	}
}

// GetOrder returns the current start depth of a named service.
func (r *Resolver) GetOrder(name string) (int, bool) {
	svc, ok := r.Reg.Find(name)
	if !ok {
		return 0, false
	}
	return svc.StartDepth, true
}

// SetOrder raises name's minimum start depth floor to depth (never lowers
// it) and, if recursive is set, re-runs the depth-first propagation from
// that service so every dependent downstream is bumped in turn.
func (r *Resolver) SetOrder(name string, depth int, recursive bool) {
	svc, ok := r.Reg.Find(name)
	if !ok {
		return
	}
	if svc.MinStartDepth < depth {
		svc.MinStartDepth = depth
	}
	if svc.StartDepth >= svc.MinStartDepth {
		return
	}
	if !recursive {
		svc.StartDepth = svc.MinStartDepth
		return
	}
	r.visitStart(svc, svc.MinStartDepth, false)
	r.guessAll()
	r.computeMaxOrder()
}

// visitStart is the depth-first propagation step: dir's own depth is raised
// to at least running (and its own floor), then every dependent is visited
// with a running depth bumped by one, unless dir is itself a facility (which
// does not itself consume a depth level).
func (r *Resolver) visitStart(dir *registry.Service, running int, reportLoop bool) {
	if dir.HasFlag(registry.FlagScanning) {
		r.markLoop(dir, reportLoop)
		return
	}
	if running < dir.MinStartDepth {
		running = dir.MinStartDepth
	}
	if running > MaxDepth {
		if !dir.HasFlag(registry.FlagDepthCapped) {
			dir.SetFlag(registry.FlagDepthCapped)
			r.warn(dir, "dependency chain exceeds maximum order of 99, branch abandoned")
		}
		return
	}
	if dir.StartDepth < running {
		dir.StartDepth = running
	}

	next := running
	if !dir.IsFacility() {
		next++
	}

	dir.SetFlag(registry.FlagScanning)
	for _, e := range dir.Reverse {
		dep, ok := r.Reg.Find(e.Target)
		if !ok || dep == dir {
			continue
		}
		if dir.StartMask != 0 && dep.StartMask != 0 && dir.StartMask&dep.StartMask == 0 {
			continue
		}
		r.visitStart(dep, next, reportLoop)
	}
	dir.ClearFlag(registry.FlagScanning)
}

func (r *Resolver) markLoop(dir *registry.Service, reportLoop bool) {
	dir.SetFlag(registry.FlagLooped)
	if reportLoop && !dir.HasFlag(registry.FlagLoopReported) {
		dir.SetFlag(registry.FlagLoopReported)
		r.warn(dir, "dependency cycle detected")
	}
}

func (r *Resolver) warn(svc *registry.Service, msg string) {
	r.Warnings = append(r.Warnings, Warning{Service: svc.Name, Message: msg})
}

// guessAll assigns a derived depth to every placeholder service (no backing
// script, not a facility) based on the minimum depth among its dependents.
func (r *Resolver) guessAll() {
	for _, svc := range r.Reg.All() {
		r.guessOrder(svc)
	}
}

func (r *Resolver) guessOrder(svc *registry.Service) {
	if svc.HasFlag(registry.FlagKnown) || svc.IsFacility() {
		return
	}
	if len(svc.Reverse) == 0 {
		svc.StartMask = r.Levels.BootBit()
		if svc.StartDepth < 1 {
			svc.StartDepth = 1
		}
		return
	}

	min := -1
	var mask uint16
	for _, e := range svc.Reverse {
		dep, ok := r.Reg.Find(e.Target)
		if !ok {
			continue
		}
		if min < 0 || dep.StartDepth < min {
			min = dep.StartDepth
		}
		mask |= dep.StartMask
	}
	svc.StartMask |= mask
	if min > 1 {
		svc.StartDepth = min - 1
	} else {
		svc.StartMask |= r.Levels.BootBit()
		if svc.StartDepth < 1 {
			svc.StartDepth = 1
		}
	}
}

func (r *Resolver) computeMaxOrder() {
	max := 0
	allBit := r.Levels.AllBit()
	for _, svc := range r.Reg.All() {
		if svc.StartMask&allBit == 0 {
			continue
		}
		if svc.StartDepth > max {
			max = svc.StartDepth
		}
	}
	r.MaxOrder = max
}

// nonLSBFixup gives every non-LSB-conforming service a MUST edge onto the
// deepest LSB-conformant service that shares its runlevels and already sits
// at a strictly smaller depth, so plain "exit 0" scripts without a header
// still order themselves after the LSB-described portion of the boot.
func (r *Resolver) nonLSBFixup() {
	for _, svc := range r.Reg.All() {
		if !svc.HasFlag(registry.FlagNotLSB) {
			continue
		}
		var best *registry.Service
		for _, cand := range r.Reg.All() {
			if cand == svc || cand.HasFlag(registry.FlagNotLSB) {
				continue
			}
			if cand.StartDepth == 0 || cand.StartDepth >= svc.StartDepth {
				continue
			}
			if svc.StartMask&cand.StartMask == 0 {
				continue
			}
			if best == nil || cand.StartDepth > best.StartDepth {
				best = cand
			}
		}
		if best != nil {
			r.Reg.RecordRequires(svc, best.Name, registry.Must)
		}
	}
}

// interactiveIsolation bumps every non-duplet, non-dependency service that
// shares a depth with an $interactive service, one level at a time until no
// conflicts remain, so an interactive script never contends for terminal
// input with something started alongside it.
func (r *Resolver) interactiveIsolation() {
	for deep := 0; deep <= MaxDepth; deep++ {
		for _, serv := range r.Reg.All() {
			if !serv.HasFlag(registry.FlagInteractive) || serv.StartDepth != deep {
				continue
			}
			for _, cur := range r.Reg.All() {
				if cur == serv || cur.HasFlag(registry.FlagDuplet) {
					continue
				}
				if serv.StartMask&cur.StartMask == 0 {
					continue
				}
				if r.isRequiredBy(serv, cur.Name) {
					continue
				}
				if serv.StartDepth == cur.StartDepth {
					r.SetOrder(cur.Name, cur.StartDepth+1, true)
				}
			}
		}
	}
}

func (r *Resolver) isRequiredBy(svc *registry.Service, name string) bool {
	for _, e := range svc.Required {
		if e.Target == name {
			return true
		}
	}
	return false
}

// allPlacement gives every service that declared a bare "$all" dependency a
// depth one past the deepest non-$all service sharing its runlevels,
// clamped to the running maximum order.
func (r *Resolver) allPlacement() {
	for _, svc := range r.Reg.All() {
		if !svc.HasFlag(registry.FlagDependsOnAll) {
			continue
		}
		max := 0
		for _, cand := range r.Reg.All() {
			if cand == svc || cand.HasFlag(registry.FlagDependsOnAll) {
				continue
			}
			if svc.StartMask&cand.StartMask == 0 {
				continue
			}
			if cand.StartDepth > max {
				max = cand.StartDepth
			}
		}
		order := max + 1
		if order > MaxDepth {
			order = r.MaxOrder
		} else if order > r.MaxOrder {
			r.MaxOrder = order
		}
		svc.StartDepth = order
	}
}

func (r *Resolver) checkOverflow() error {
	for _, svc := range r.Reg.All() {
		if svc.StartDepth > MaxDepth {
			return cerrors.WrapWithService(cerrors.ErrDepthOverflow99, cerrors.ErrDepthOverflow, "resolve", svc.Name)
		}
	}
	return nil
}

// ResolveStop computes stop depths for every service as the reflection of
// its start depth around the final maximum order (MaxOrder + 1 - StartDepth,
// at least 1). The same formula is used under every dialect; no separate
// stop-side graph is traversed.
func (r *Resolver) ResolveStop() {
	for _, svc := range r.Reg.All() {
		svc.StopDepth = r.MaxOrder + 1 - svc.StartDepth
		if svc.StopDepth < 1 {
			svc.StopDepth = 1
		}
	}
}

// CycleWarnings returns every service currently flagged as part of a
// dependency cycle, sorted by name for deterministic reporting.
func (r *Resolver) CycleWarnings() []string {
	var names []string
	for _, svc := range r.Reg.All() {
		if svc.HasFlag(registry.FlagLooped) {
			names = append(names, svc.Name)
		}
	}
	sort.Strings(names)
	return names
}
