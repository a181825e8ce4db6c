// Package registry holds the service graph: one Service node per declared
// script or facility, and the MUST/SHOULD edges between them recorded while
// scanning LSB headers and the facility configuration.
package registry

import (
	"strings"

	cerrors "insservgo/errors"
)

// Kind distinguishes a hard (Required-*) dependency from a soft
// (Should-*) one.
type Kind int

const (
	// Must corresponds to Required-Start/Required-Stop.
	Must Kind = iota
	// Should corresponds to Should-Start/Should-Stop.
	Should
)

func (k Kind) String() string {
	if k == Must {
		return "must"
	}
	return "should"
}

// Flag is a bitmask of per-service state, mirroring the scan-state bits
// carried on each node of the original dependency graph.
type Flag uint16

const (
	// FlagKnown marks a service backed by a real script (as opposed to a
	// bare placeholder created only because something depends on it).
	FlagKnown Flag = 1 << iota
	// FlagNotLSB marks a script with no LSB header block at all.
	FlagNotLSB
	// FlagDoubleProvided marks a facility provided by more than one script.
	FlagDoubleProvided
	// FlagInteractive marks a service enrolled in the $interactive group.
	FlagInteractive
	// FlagEnabled marks a service actually selected for link-farm placement.
	FlagEnabled
	// FlagDependsOnAll marks a service that declared $all as a dependency;
	// its final depth is derived after every other service is placed.
	FlagDependsOnAll
	// FlagDuplet marks an additional name declared on the same Provides:
	// line as another (canonical) service of the same script.
	FlagDuplet
	// FlagScanning is a transient mark set while a node is on the current
	// depth-first traversal path, used to detect cycles.
	FlagScanning
	// FlagLooped marks a node found to be part of a cycle.
	FlagLooped
	// FlagLoopReported suppresses repeated cycle warnings for the same node.
	FlagLoopReported
	// FlagDepthCapped suppresses repeated depth-cap warnings for the same node.
	FlagDepthCapped
	// FlagOptional marks a placeholder created only from a "+name" token:
	// its absence as a real script is not reported as a missing dependency.
	FlagOptional
)

// Edge is one dependency relationship, either a forward "I require you" or
// its implied reverse "you are required by me".
type Edge struct {
	Target string
	Kind   Kind
}

// Service is one node in the dependency graph: a concrete init script, a
// facility, or a placeholder created only because another service named it
// as a dependency before it was itself declared.
type Service struct {
	Name   string
	Script string // backing script basename, empty for a pure facility

	StartMask uint16
	StopMask  uint16

	StartDepth int
	StopDepth  int

	MinStartDepth int
	MinStopDepth  int

	Flags Flag

	// Main points at the canonical service when this one is a duplet
	// (FlagDuplet set): the first name on the Provides: line of the script
	// that also provides this one.
	Main *Service

	// Required holds every edge this service declared via Required-*/
	// Should-* (or an X-Start-Before/X-Stop-After declared against it by
	// another service and folded in via RecordReverse).
	Required []Edge

	// Reverse holds every service that in turn requires this one: the
	// dependents list used both for forward depth propagation and to
	// compute stop-side makefile dependencies.
	Reverse []Edge
}

// HasFlag reports whether every bit in f is set.
func (s *Service) HasFlag(f Flag) bool { return s.Flags&f == f }

// SetFlag sets the given bits.
func (s *Service) SetFlag(f Flag) { s.Flags |= f }

// ClearFlag clears the given bits.
func (s *Service) ClearFlag(f Flag) { s.Flags &^= f }

// IsFacility reports whether the service name is a virtual facility
// ("$something") rather than a concrete script-backed name.
func (s *Service) IsFacility() bool {
	return strings.HasPrefix(s.Name, "$")
}

// Canonical returns the service that should actually be used for placement:
// itself, unless it is a duplet, in which case its Main.
func (s *Service) Canonical() *Service {
	if s.HasFlag(FlagDuplet) && s.Main != nil {
		return s.Main
	}
	return s
}

// Registry is the full set of known services, keyed by name.
type Registry struct {
	services map[string]*Service
	order    []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// AddOrGet returns the existing service named name, or creates and returns a
// fresh placeholder for it.
func (r *Registry) AddOrGet(name string) *Service {
	if s, ok := r.services[name]; ok {
		return s
	}
	s := &Service{Name: name, MinStartDepth: 1, MinStopDepth: 1}
	r.services[name] = s
	r.order = append(r.order, name)
	return s
}

// Find looks up a service by name without creating it.
func (r *Registry) Find(name string) (*Service, bool) {
	s, ok := r.services[name]
	return s, ok
}

// All returns every known service in the order it was first referenced.
// This order is what later gives iteration over the registry (depth
// resolution passes, makefile generation) a deterministic, reproducible
// result.
func (r *Registry) All() []*Service {
	out := make([]*Service, len(r.order))
	for i, name := range r.order {
		out[i] = r.services[name]
	}
	return out
}

// RecordRequires adds a dependency edge: source requires target. A
// placeholder is created for target if it does not yet exist. A duplicate
// edge between the same pair upgrades Should to Must but never downgrades.
// Self-edges are silently dropped.
func (r *Registry) RecordRequires(source *Service, target string, kind Kind) *Service {
	if source.Name == target {
		return source
	}
	dep := r.AddOrGet(target)

	for i, e := range source.Required {
		if e.Target == target {
			if kind == Must {
				source.Required[i].Kind = Must
			}
			r.upgradeReverse(dep, source.Name, kind)
			return dep
		}
	}
	source.Required = append(source.Required, Edge{Target: target, Kind: kind})
	dep.Reverse = append(dep.Reverse, Edge{Target: source.Name, Kind: kind})
	return dep
}

func (r *Registry) upgradeReverse(dep *Service, sourceName string, kind Kind) {
	if kind != Must {
		return
	}
	for i, e := range dep.Reverse {
		if e.Target == sourceName {
			dep.Reverse[i].Kind = Must
			return
		}
	}
}

// RecordReverse folds an X-Start-Before/X-Stop-After declaration into the
// graph: source declared that subject must follow it, which is exactly the
// same relationship as subject requiring source.
func (r *Registry) RecordReverse(source *Service, subject string, kind Kind) *Service {
	subj := r.AddOrGet(subject)
	r.RecordRequires(subj, source.Name, kind)
	return subj
}

// MarkScript records that name is backed by script. If a different script
// already claims the same name, that is a provider conflict (makeprov()
// failing in the original), not a duplet: the name keeps its original
// owner, and the conflicting script is instead registered under its own
// basename, with both ends flagged FlagDoubleProvided. No Main link is
// created here; DUPLET is reserved for a single script providing more than
// one name, handled by MarkDuplet.
func (r *Registry) MarkScript(name, script string) *Service {
	svc := r.AddOrGet(name)
	if svc.Script == "" || svc.Script == script {
		svc.SetFlag(FlagKnown)
		svc.Script = script
		return svc
	}

	svc.SetFlag(FlagDoubleProvided)
	other := r.AddOrGet(script)
	other.SetFlag(FlagKnown | FlagDoubleProvided)
	other.Script = script
	return other
}

// MarkDuplet records that name is an additional name provided by the same
// script that already backs main, via a second (or later) token on the same
// Provides: line. Every such name is flagged FlagDuplet with Main pointing
// at the line's first (canonical) service, matching insserv's handling of a
// multi-name Provides: declaration.
func (r *Registry) MarkDuplet(main *Service, name string) *Service {
	svc := r.AddOrGet(name)
	svc.SetFlag(FlagKnown | FlagDuplet)
	svc.Script = main.Script
	svc.Main = main
	return svc
}

// MissingRequired returns a *ServiceError for a Must edge whose target was
// never backed by a real script, matching the check performed after a
// configuration is fully scanned.
func (r *Registry) MissingRequired() []error {
	var errs []error
	for _, s := range r.All() {
		for _, e := range s.Required {
			if e.Kind != Must {
				continue
			}
			target, ok := r.Find(e.Target)
			if ok && target.HasFlag(FlagOptional) {
				continue
			}
			if !ok || (!target.HasFlag(FlagKnown) && !target.IsFacility()) {
				errs = append(errs, cerrors.WrapWithService(cerrors.ErrMissingRequired, cerrors.ErrDependencyMissing, "validate", s.Name))
			}
		}
	}
	return errs
}
