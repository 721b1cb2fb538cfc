package cluster

import (
	"testing"

	"github.com/carvelab/ingest/internal/types"
)

func TestSelectPrimaryFileEmpty(t *testing.T) {
	if got := SelectPrimaryFile(nil, nil); got != nil {
		t.Errorf("SelectPrimaryFile(nil) = %+v, want nil", got)
	}
}

func TestSelectPrimaryFileSingle(t *testing.T) {
	files := sfs("box/lid.dxf")
	got := SelectPrimaryFile(files, nil)
	if got == nil || got.Path != "box/lid.dxf" {
		t.Errorf("single-element list should return that element, got %+v", got)
	}
}

func TestSelectPrimaryFileMainWins(t *testing.T) {
	files := sfs("p/main.dxf", "p/extra.svg")
	got := SelectPrimaryFile(files, nil)
	if got == nil || got.Name != "main.dxf" {
		t.Errorf("file named main should win over better extension, got %+v", got)
	}

	files = sfs("p/detail.svg", "p/wolf-main.pdf")
	got = SelectPrimaryFile(files, nil)
	if got == nil || got.Name != "wolf-main.pdf" {
		t.Errorf("-main suffix should win, got %+v", got)
	}
}

func TestSelectPrimaryFileExtensionPriority(t *testing.T) {
	files := sfs("p/a.pdf", "p/a.dxf", "p/a.svg")
	got := SelectPrimaryFile(files, nil)
	if got == nil || got.Extension != ".svg" {
		t.Errorf("svg should rank first, got %+v", got)
	}
}

func TestSelectPrimaryFileUnknownExtensionLast(t *testing.T) {
	files := sfs("p/a.xyz", "p/a.cdr")
	got := SelectPrimaryFile(files, nil)
	if got == nil || got.Extension != ".cdr" {
		t.Errorf("extension outside the priority list should sort last, got %+v", got)
	}
}

func TestSelectPrimaryFileTieKeepsInputOrder(t *testing.T) {
	files := sfs("p/first.xyz", "p/second.xyz")
	got := SelectPrimaryFile(files, nil)
	if got == nil || got.Name != "first.xyz" {
		t.Errorf("ties should keep first occurrence, got %+v", got)
	}
}

func TestDetermineFileRole(t *testing.T) {
	files := sfs("p/logo.svg", "p/logo.dxf", "p/assembly-notes.pdf")
	primary := &files[0]

	if got := DetermineFileRole(files[0], primary, files); got != types.RolePrimary {
		t.Errorf("primary file role = %s, want primary", got)
	}
	if got := DetermineFileRole(files[1], primary, files); got != types.RoleVariant {
		t.Errorf("same-basename file role = %s, want variant", got)
	}
	if got := DetermineFileRole(files[2], primary, files); got != types.RoleComponent {
		t.Errorf("other member role = %s, want component", got)
	}
}

func TestDetermineFileRoleNoPrimary(t *testing.T) {
	files := sfs("p/a.svg", "p/b.svg")
	for _, f := range files {
		if got := DetermineFileRole(f, nil, files); got != types.RolePrimary {
			t.Errorf("with no designated primary every file is primary, got %s", got)
		}
	}
}
