package registry

import (
	"strings"

	"insservgo/facility"
	"insservgo/runlevel"
)

// Expander tokenizes a raw header field value and records the dependency
// edges it implies, expanding any $group reference against a facility
// table along the way.
type Expander struct {
	Reg        *Registry
	Facilities *facility.Table
	Levels     *runlevel.Map
}

// Remember tokenizes raw (a Required-Start/Should-Start style value) and
// records a forward "source requires token" edge for each token. A leading
// '+' marks an optional token: if it never turns out to be backed by a
// real script, it is left as a bare placeholder rather than reported
// missing. A bare "$all" sets FlagDependsOnAll on source instead of being
// expanded.
func (ex *Expander) Remember(source *Service, kind Kind, raw string) {
	for _, tok := range splitTokens(raw) {
		optional := strings.HasPrefix(tok, "+")
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" {
			continue
		}
		if tok == "$all" {
			source.SetFlag(FlagDependsOnAll)
			continue
		}
		if strings.HasPrefix(tok, "$") && ex.Facilities != nil {
			ex.rememberGroup(source, kind, tok, optional)
			continue
		}
		dep := ex.Reg.RecordRequires(source, tok, kind)
		if optional {
			dep.SetFlag(FlagOptional)
		}
	}
}

func (ex *Expander) rememberGroup(source *Service, kind Kind, name string, optional bool) {
	members, err := ex.Facilities.Expand(name)
	if err != nil {
		// Unknown or cyclic group: fall back to treating the name itself
		// as a facility placeholder so the run can still proceed.
		ex.Reg.RecordRequires(source, name, kind)
		return
	}
	for _, m := range members {
		if m.Name == "" {
			continue
		}
		dep := ex.Reg.RecordRequires(source, m.Name, kind)
		if optional || m.Optional {
			dep.SetFlag(FlagOptional)
		}
	}
}

// RememberReverse tokenizes raw (an X-Start-Before/X-Stop-After style
// value) and, for each token, records that the named service must follow
// source: exactly the edge RecordReverse creates.
func (ex *Expander) RememberReverse(source *Service, kind Kind, raw string) {
	for _, tok := range splitTokens(raw) {
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" || tok == "$all" {
			continue
		}
		if strings.HasPrefix(tok, "$") && ex.Facilities != nil {
			members, err := ex.Facilities.Expand(tok)
			if err != nil {
				ex.Reg.RecordReverse(source, tok, kind)
				continue
			}
			for _, m := range members {
				if m.Name != "" {
					ex.Reg.RecordReverse(source, m.Name, kind)
				}
			}
			continue
		}
		ex.Reg.RecordReverse(source, tok, kind)
	}
}

func splitTokens(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		switch r {
		case ' ', '\t', ',', ';':
			return true
		}
		return false
	})
}
