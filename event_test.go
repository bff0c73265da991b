package fstrace

import "testing"

func TestFileSystemEventTypeString(t *testing.T) {
	tests := []struct {
		typ  FileSystemEventType
		want string
	}{
		{simpleEventType(Create), "Create"},
		{simpleEventType(Unknown), "Unknown"},
		{movedFromType("/b"), "MovedFrom"},
		{movedToType("/a"), "MovedTo"},
	}
	for _, tt := range tests {
		if got := tt.typ.Verb.String(); got != tt.want {
			t.Errorf("Verb.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestMovedFromCarriesDestinationAsPeer(t *testing.T) {
	typ := movedFromType("/new/path")
	if typ.Verb != MovedFrom {
		t.Fatalf("verb = %v, want MovedFrom", typ.Verb)
	}
	if typ.Peer != "/new/path" {
		t.Fatalf("peer = %q, want /new/path", typ.Peer)
	}
}

func TestMovedToCarriesSourceAsPeer(t *testing.T) {
	typ := movedToType("/old/path")
	if typ.Verb != MovedTo {
		t.Fatalf("verb = %v, want MovedTo", typ.Verb)
	}
	if typ.Peer != "/old/path" {
		t.Fatalf("peer = %q, want /old/path", typ.Peer)
	}
}

func TestFileSystemEventStringNoTarget(t *testing.T) {
	ev := FileSystemEvent{Type: simpleEventType(Move)}
	if got, want := ev.String(), "Move: <no target>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFileSystemTargetKindString(t *testing.T) {
	if File.String() != "File" {
		t.Errorf("File.String() = %q", File.String())
	}
	if Directory.String() != "Directory" {
		t.Errorf("Directory.String() = %q", Directory.String())
	}
}
