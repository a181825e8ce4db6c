// Package engine wires the scanner, config, facility, registry, resolve and
// reconcile packages into the single pipeline a run of insservgo performs:
// load configuration, scan init scripts, build the dependency graph,
// compute depths, and bring the link farm into agreement with them.
package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"insservgo/config"
	cerrors "insservgo/errors"
	"insservgo/logging"
	"insservgo/reconcile"
	"insservgo/registry"
	"insservgo/resolve"
	"insservgo/runlevel"
	"insservgo/scanner"
)

// Request describes one invocation of the resolver.
type Request struct {
	// InitDir is the init.d directory holding the scripts to scan.
	InitDir string
	// ConfigPath is the path to insserv.conf (and its .d drop-ins).
	ConfigPath string
	// OverrideDir holds per-script header overrides, if any.
	OverrideDir string
	// Dialect forces a runlevel layout; if nil, it is auto-detected from
	// InitDir's parent.
	Dialect *runlevel.Dialect
	// Scripts restricts the run to the named scripts (basenames). An empty
	// slice scans every script in InitDir.
	Scripts []string
	// Remove, when set, disables every named script instead of enabling it.
	Remove bool
	// StartOnly restricts the named services to start-side enrollment only
	// (their stop mask is cleared after resolution): the start=<names>
	// positional token.
	StartOnly []string
	// StopOnly restricts the named services to stop-side enrollment only:
	// the stop=<names> positional token.
	StopOnly []string
	// Force skips, with a warning, a script whose header cannot be scanned
	// instead of aborting the run, and leaves missing required dependencies
	// out of Result.Warnings. Missing dependencies and duplicate providers
	// do not abort a run, with or without Force.
	Force bool
	// DryRun computes the full plan but makes no filesystem changes.
	DryRun bool
}

// Result is what one engine run produced.
type Result struct {
	Registry  *registry.Registry
	Resolver  *resolve.Resolver
	Reconcile *reconcile.Reconciler
	Warnings  []string
}

// RunError reports a failed run together with whatever partial state had
// already been computed, so a caller can still print diagnostics.
type RunError struct {
	Result *Result
	Err    error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

// Run executes the full pipeline for req.
func Run(req Request) (*Result, error) {
	log := logging.Default()

	cfg, err := config.Load(req.ConfigPath)
	if err != nil {
		return nil, &RunError{Err: err}
	}

	dialect := runlevel.DialectSUSE
	if req.Dialect != nil {
		dialect = *req.Dialect
	} else {
		dialect = runlevel.DetectDialect(filepath.Dir(req.InitDir))
	}
	levels := runlevel.NewMap(dialect)

	reg := registry.New()
	names, err := scriptList(req)
	if err != nil {
		return nil, &RunError{Err: err}
	}

	for _, name := range names {
		if err := scanScript(reg, cfg, levels, req, name); err != nil {
			if req.Force {
				logging.Warn("continuing past scan error", "script", name, "error", err)
				continue
			}
			return nil, &RunError{Err: err}
		}
	}

	res := &Result{Registry: reg}

	if !req.Force {
		for _, missErr := range reg.MissingRequired() {
			res.Warnings = append(res.Warnings, missErr.Error())
		}
	}

	r := resolve.New(reg, levels)
	if err := r.ResolveStart(); err != nil {
		return &Result{Registry: reg, Resolver: r}, &RunError{Err: err, Result: res}
	}
	r.ApplyWellKnownPins(dialect)
	r.ResolveStop()
	res.Resolver = r
	res.Warnings = append(res.Warnings, warningStrings(r.Warnings)...)

	markEnabled(reg, req)
	applyFacetRestrictions(reg, req)

	rc := reconcile.New(req.InitDir, levels, req.DryRun)
	if err := rc.Reconcile(reg); err != nil {
		return res, &RunError{Err: err, Result: res}
	}
	res.Reconcile = rc

	if !req.DryRun {
		if err := reconcile.WriteMakefileStubs(reg, levels, req.InitDir); err != nil {
			return res, &RunError{Err: err, Result: res}
		}
	}

	log.Info("resolution complete", "services", len(reg.All()), "max_order", r.MaxOrder)
	return res, nil
}

func warningStrings(ws []resolve.Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

// scriptList returns the basenames of scripts to scan: either req.Scripts
// verbatim, or every regular, executable-looking file in req.InitDir.
func scriptList(req Request) ([]string, error) {
	if len(req.Scripts) > 0 {
		out := make([]string, len(req.Scripts))
		copy(out, req.Scripts)
		return out, nil
	}

	entries, err := os.ReadDir(req.InitDir)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "list scripts", req.InitDir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// scanScript reads one init script's header, merges any override, and
// records it into reg.
func scanScript(reg *registry.Registry, cfg *config.Config, levels *runlevel.Map, req Request, name string) error {
	path := filepath.Join(req.InitDir, name)
	realName, err := scanner.ResolveScriptName(path)
	if err != nil {
		return err
	}

	h, err := scanner.ScanFile(path)
	if err != nil {
		return err
	}

	if override, err := scanner.LoadOverride(req.OverrideDir, realName); err != nil {
		return err
	} else if override != nil {
		h.Merge(override)
	}

	provided := []string{realName}
	if h.Provides.Present && strings.TrimSpace(h.Provides.Value) != "" {
		if fields := scanner.SplitTokens(h.Provides.Value); len(fields) > 0 {
			provided = fields
		}
	}
	serviceName := provided[0]
	if serviceName == "" {
		return cerrors.WrapWithDetail(cerrors.ErrEmptyServiceName, cerrors.ErrInvalidConfig, "scan", path)
	}

	// The first Provides: token names the canonical service for this
	// script; every further token on the same line is a duplet of it
	// (insserv.c's multi-name Provides: handling).
	svc := reg.MarkScript(serviceName, realName)
	for _, extra := range provided[1:] {
		if extra == "" {
			continue
		}
		reg.MarkDuplet(svc, extra)
	}

	if !h.Found {
		svc.SetFlag(registry.FlagNotLSB)
	}
	if cfg.Interactive[serviceName] {
		svc.SetFlag(registry.FlagInteractive)
	}

	svc.StartMask = levels.KeysToMask([]byte(strings.Join(strings.Fields(h.DefaultStart.Value), "")))
	svc.StopMask = levels.KeysToMask([]byte(strings.Join(strings.Fields(h.DefaultStop.Value), "")))

	expander := registry.Expander{Reg: reg, Facilities: cfg.Facilities, Levels: levels}
	expander.Remember(svc, registry.Must, h.RequiredStart.Value)
	expander.Remember(svc, registry.Should, h.ShouldStart.Value)
	expander.Remember(svc, registry.Must, h.RequiredStop.Value)
	expander.Remember(svc, registry.Should, h.ShouldStop.Value)
	expander.RememberReverse(svc, registry.Must, h.StartBefore.Value)
	expander.RememberReverse(svc, registry.Must, h.StopAfter.Value)

	return nil
}

// markEnabled flags every service that should participate in link-farm
// placement: by default every known service, restricted to req.Scripts if
// given, and inverted under Remove (nothing gets enabled, since the
// reconciler only creates links for FlagEnabled services).
func markEnabled(reg *registry.Registry, req Request) {
	only := make(map[string]bool)
	for _, n := range req.Scripts {
		only[n] = true
	}

	for _, svc := range reg.All() {
		if !svc.HasFlag(registry.FlagKnown) {
			continue
		}
		if req.Remove {
			continue
		}
		if len(only) > 0 {
			if !only[svc.Name] && !only[svc.Script] {
				continue
			}
		}
		svc.SetFlag(registry.FlagEnabled)
	}
}

// applyFacetRestrictions narrows a service to only its start-side or only
// its stop-side link placement when named by the start=/stop= positional
// tokens: the service still resolves and is still enabled, but the
// reconciler only writes the requested half of its symlinks.
func applyFacetRestrictions(reg *registry.Registry, req Request) {
	for _, name := range req.StartOnly {
		if svc, ok := reg.Find(strings.TrimSpace(name)); ok {
			svc.StopMask = 0
		}
	}
	for _, name := range req.StopOnly {
		if svc, ok := reg.Find(strings.TrimSpace(name)); ok {
			svc.StartMask = 0
		}
	}
}
