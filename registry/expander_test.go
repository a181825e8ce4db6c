package registry

import (
	"testing"

	"insservgo/facility"
)

func TestExpanderRememberPlainTokens(t *testing.T) {
	reg := New()
	facilities := facility.NewTable()
	ex := Expander{Reg: reg, Facilities: facilities}

	apache := reg.AddOrGet("apache2")
	ex.Remember(apache, Must, "networking syslog")

	if len(apache.Required) != 2 {
		t.Fatalf("expected 2 required edges, got %d", len(apache.Required))
	}
}

func TestExpanderRememberOptionalToken(t *testing.T) {
	reg := New()
	ex := Expander{Reg: reg, Facilities: facility.NewTable()}
	apache := reg.AddOrGet("apache2")

	ex.Remember(apache, Must, "+maybe-absent")

	dep, ok := reg.Find("maybe-absent")
	if !ok || !dep.HasFlag(FlagOptional) {
		t.Fatalf("expected maybe-absent to be flagged optional, got %+v ok=%v", dep, ok)
	}

	if errs := reg.MissingRequired(); len(errs) != 0 {
		t.Errorf("expected no missing-required errors for an optional dependency, got %d", len(errs))
	}
}

func TestExpanderRememberAllFlagsDependsOnAll(t *testing.T) {
	reg := New()
	ex := Expander{Reg: reg, Facilities: facility.NewTable()}
	lastthing := reg.AddOrGet("lastthing")

	ex.Remember(lastthing, Must, "$all")

	if !lastthing.HasFlag(FlagDependsOnAll) {
		t.Error("expected $all to set FlagDependsOnAll rather than create an edge")
	}
	if len(lastthing.Required) != 0 {
		t.Errorf("expected no Required edge for $all, got %+v", lastthing.Required)
	}
}

func TestExpanderRememberExpandsFacilityGroup(t *testing.T) {
	reg := New()
	facilities := facility.NewTable()
	facilities.Define("$remote_fs", []facility.Member{{Name: "nfs"}, {Name: "autofs", Optional: true}})
	ex := Expander{Reg: reg, Facilities: facilities}

	nfsClient := reg.AddOrGet("nfs-client")
	ex.Remember(nfsClient, Must, "$remote_fs")

	nfs, ok := reg.Find("nfs")
	if !ok {
		t.Fatal("expected nfs placeholder created from facility expansion")
	}
	autofs, ok := reg.Find("autofs")
	if !ok || !autofs.HasFlag(FlagOptional) {
		t.Errorf("expected autofs to be created and flagged optional, got %+v ok=%v", autofs, ok)
	}
	if len(nfsClient.Required) != 2 {
		t.Errorf("expected 2 required edges after facility expansion, got %d", len(nfsClient.Required))
	}
	_ = nfs
}

func TestExpanderRememberReverse(t *testing.T) {
	reg := New()
	ex := Expander{Reg: reg, Facilities: facility.NewTable()}
	kbd := reg.AddOrGet("kbd")

	ex.RememberReverse(kbd, Must, "single")

	single, ok := reg.Find("single")
	if !ok {
		t.Fatal("expected single to be created")
	}
	if len(single.Required) != 1 || single.Required[0].Target != "kbd" {
		t.Errorf("expected single to require kbd via reverse edge, got %+v", single.Required)
	}
}
