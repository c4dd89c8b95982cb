// Package filenames implements the "mc"/"la"/"ka" filename grammar
// spec.md §6 describes. The teacher has no filename parser at all — its
// storage objects are addressed by an (ObjectType, generation) tuple kept
// entirely in memory (lib/go-fs/inmem.go) — so this is built from spec.md
// directly, in the teacher's plain-function, early-return style.
package filenames

import (
	"strconv"
	"strings"

	"github.com/nogodb/mcsstable/metadata"
)

// Version names the on-disk format a filename declares itself as.
type Version string

const (
	VersionMC  Version = "mc"
	VersionLA  Version = "la"
	VersionKA  Version = "ka" // legacy; recognised, not written (spec.md Non-goals)
)

// Descriptor is a parsed SSTable component filename.
type Descriptor struct {
	Version    Version
	Generation string
	Component  metadata.ComponentName
	// Keyspace/Table are only populated for the legacy "ka" grammar, which
	// embeds them ahead of the generation.
	Keyspace string
	Table    string
	// Subdir is one of "", "staging", "upload", or "snapshots/<name>",
	// recognised per spec.md §6 but not otherwise interpreted here.
	Subdir string
}

// Format builds the "mc-<gen>-big-<Component>" filename for component,
// the only grammar this engine writes (spec.md §6 Non-goals: legacy
// encodings are read-recognised only).
func Format(generation string, component metadata.ComponentName) string {
	return "mc-" + generation + "-big-" + string(component)
}

// TemporaryTOCName and TOCName are the two sealing-protocol filenames
// spec.md §4.6 names explicitly.
func TemporaryTOCName(generation string) string {
	return "mc-" + generation + "-big-TemporaryTOC.txt"
}

func TOCName(generation string) string {
	return "mc-" + generation + "-big-TOC.txt"
}

// Parse recognises both the current "la"/"mc" grammar
// (<version>-<generation>-<format>-<component>) and the legacy "ka" one
// (<ks>-<cf>-ka-<gen>-<component>), tolerating a leading staging/upload/
// snapshots subdirectory component (spec.md §6).
func Parse(path string) (Descriptor, bool) {
	subdir, name := splitSubdir(path)

	parts := strings.Split(name, "-")
	switch {
	case len(parts) >= 4 && (parts[0] == string(VersionMC) || parts[0] == string(VersionLA)):
		// <version>-<generation>-<format>-<component...>
		component := strings.Join(parts[3:], "-")
		return Descriptor{
			Version:    Version(parts[0]),
			Generation: parts[1],
			Component:  metadata.ComponentName(component),
			Subdir:     subdir,
		}, true
	case len(parts) >= 5 && parts[2] == string(VersionKA):
		// <ks>-<cf>-ka-<gen>-<component...>
		component := strings.Join(parts[4:], "-")
		return Descriptor{
			Version:    VersionKA,
			Keyspace:   parts[0],
			Table:      parts[1],
			Generation: parts[3],
			Component:  metadata.ComponentName(component),
			Subdir:     subdir,
		}, true
	default:
		return Descriptor{}, false
	}
}

func splitSubdir(path string) (subdir, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	dir, base := path[:i], path[i+1:]
	switch {
	case dir == "staging", dir == "upload":
		return dir, base
	case strings.HasPrefix(dir, "snapshots/"):
		return dir, base
	default:
		return "", path
	}
}

// GenerationLess orders two generation strings numerically when both parse
// as integers (the common case), falling back to a lexical comparison for
// any exotic generation scheme a caller might use.
func GenerationLess(a, b string) bool {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}
