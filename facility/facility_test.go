package facility

import "testing"

func TestDefineAppends(t *testing.T) {
	tbl := NewTable()
	tbl.Define("$local_fs", []Member{{Name: "mountall"}})
	tbl.Define("$local_fs", []Member{{Name: "mountdevsubfs"}})

	g, ok := tbl.Get("$local_fs")
	if !ok {
		t.Fatal("expected $local_fs to exist")
	}
	if len(g.Members) != 2 {
		t.Fatalf("expected 2 members after repeated Define, got %d", len(g.Members))
	}
}

func TestExpandFlat(t *testing.T) {
	tbl := NewTable()
	tbl.Define("$network", []Member{{Name: "networking"}, {Name: "NetworkManager", Optional: true}})

	members, err := tbl.Expand("$network")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[1].Name != "NetworkManager" || !members[1].Optional {
		t.Errorf("expected optional NetworkManager member, got %+v", members[1])
	}
}

func TestExpandNested(t *testing.T) {
	tbl := NewTable()
	tbl.Define("$local_fs", []Member{{Name: "mountall"}})
	tbl.Define("$named", []Member{{Name: "$local_fs"}, {Name: "bind9"}})

	members, err := tbl.Expand("$named")
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, m := range members {
		names[m.Name] = true
	}
	if !names["mountall"] || !names["bind9"] {
		t.Errorf("expected nested expansion to include mountall and bind9, got %+v", members)
	}
}

func TestExpandCycleDetected(t *testing.T) {
	tbl := NewTable()
	tbl.Define("$a", []Member{{Name: "$b"}})
	tbl.Define("$b", []Member{{Name: "$a"}})

	if _, err := tbl.Expand("$a"); err == nil {
		t.Error("expected an error expanding a cyclic facility group")
	}
}

func TestExpandUnknownGroup(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Expand("$nope"); err == nil {
		t.Error("expected an error expanding an undeclared group")
	}
}

func TestExpandAllNeverRecurses(t *testing.T) {
	tbl := NewTable()
	tbl.Define("$weird", []Member{{Name: "$all"}})

	members, err := tbl.Expand("$weird")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].Name != "$all" {
		t.Errorf("expected $all to pass through unexpanded, got %+v", members)
	}
}
