package fstrace

import "fmt"

// FileSystemTargetKind discriminates whether a [FileSystemTarget] refers to
// a regular file or a directory.
type FileSystemTargetKind uint8

const (
	// File indicates the target is a regular file (or anything that is not
	// a directory, such as a FIFO or symlink).
	File FileSystemTargetKind = iota
	// Directory indicates the target is a directory.
	Directory
)

func (k FileSystemTargetKind) String() string {
	if k == Directory {
		return "Directory"
	}
	return "File"
}

// FileSystemTarget identifies the subject of a [FileSystemEvent]. Path is
// an opaque, OS-native byte string; it is never required to be valid UTF-8.
type FileSystemTarget struct {
	Kind FileSystemTargetKind
	Path string
}

// EventVerb is the semantic verb of a [FileSystemEvent].
type EventVerb uint8

const (
	// Create indicates a new path was created.
	Create EventVerb = iota
	// Modify indicates an existing path's content or attributes changed.
	Modify
	// Delete indicates a path was removed.
	Delete
	// Move indicates a rename whose other half could not be paired, so it
	// carries at most one of the two paths involved.
	Move
	// MovedFrom is the source half of a paired rename; Event.Target.Path
	// holds the source path and Peer holds the destination.
	MovedFrom
	// MovedTo is the destination half of a paired rename; Event.Target.Path
	// holds the destination path and Peer holds the source.
	MovedTo
	// Unknown indicates a kernel event whose mask did not map to any of the
	// above; it is logged and still delivered so subscribers can see it.
	Unknown
)

func (v EventVerb) String() string {
	switch v {
	case Create:
		return "Create"
	case Modify:
		return "Modify"
	case Delete:
		return "Delete"
	case Move:
		return "Move"
	case MovedFrom:
		return "MovedFrom"
	case MovedTo:
		return "MovedTo"
	default:
		return "Unknown"
	}
}

// FileSystemEventType is the semantic classification of a [FileSystemEvent].
// For MovedFrom and MovedTo, Peer carries the other half of the rename; it
// is the empty string for every other verb.
type FileSystemEventType struct {
	Verb EventVerb
	Peer string
}

// simpleEventType builds a FileSystemEventType with no peer path, for verbs
// other than MovedFrom/MovedTo.
func simpleEventType(v EventVerb) FileSystemEventType { return FileSystemEventType{Verb: v} }

// movedFromType builds a MovedFrom event type whose peer is the destination path.
func movedFromType(destination string) FileSystemEventType {
	return FileSystemEventType{Verb: MovedFrom, Peer: destination}
}

// movedToType builds a MovedTo event type whose peer is the source path.
func movedToType(source string) FileSystemEventType {
	return FileSystemEventType{Verb: MovedTo, Peer: source}
}

// FileSystemEvent is a single delivered unit. Target is nil only for an
// unpaired Move whose path could not be resolved at all.
type FileSystemEvent struct {
	Type   FileSystemEventType
	Target *FileSystemTarget
}

func (e FileSystemEvent) String() string {
	if e.Target == nil {
		return fmt.Sprintf("%s: <no target>", e.Type.Verb)
	}
	if e.Type.Peer != "" {
		return fmt.Sprintf("%s(%s): %s %q", e.Type.Verb, e.Type.Peer, e.Target.Kind, e.Target.Path)
	}
	return fmt.Sprintf("%s: %s %q", e.Type.Verb, e.Target.Kind, e.Target.Path)
}
