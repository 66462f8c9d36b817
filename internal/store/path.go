package store

import (
	"fmt"
	"strings"
)

// Hive is one of the fixed top-level roots of the store.
type Hive string

const (
	HiveLocalMachine  Hive = "HKEY_LOCAL_MACHINE"
	HiveCurrentUser   Hive = "HKEY_CURRENT_USER"
	HiveClassesRoot   Hive = "HKEY_CLASSES_ROOT"
	HiveUsers         Hive = "HKEY_USERS"
	HiveCurrentConfig Hive = "HKEY_CURRENT_CONFIG"
)

var hiveAliases = map[string]Hive{
	"HKEY_LOCAL_MACHINE":  HiveLocalMachine,
	"HKLM":                HiveLocalMachine,
	"HKEY_CURRENT_USER":   HiveCurrentUser,
	"HKCU":                HiveCurrentUser,
	"HKEY_CLASSES_ROOT":   HiveClassesRoot,
	"HKCR":                HiveClassesRoot,
	"HKEY_USERS":          HiveUsers,
	"HKU":                 HiveUsers,
	"HKEY_CURRENT_CONFIG": HiveCurrentConfig,
	"HKCC":                HiveCurrentConfig,
}

// Hives returns the recognised hives in a fixed order.
func Hives() []Hive {
	return []Hive{HiveLocalMachine, HiveCurrentUser, HiveClassesRoot, HiveUsers, HiveCurrentConfig}
}

// RootPath addresses a key as a hive plus a backslash-separated path below it.
type RootPath struct {
	Hive    Hive
	SubPath string
}

// ParsePath parses "HIVE\sub\path". Hive names are matched
// case-insensitively against the full names and their short aliases; forward
// slashes are accepted as separators. Empty segments are dropped.
func ParsePath(s string) (RootPath, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", `\`)
	segments := Split(s)
	if len(segments) == 0 {
		return RootPath{}, fmt.Errorf("%w: empty path", ErrUnsupportedRoot)
	}

	hive, ok := hiveAliases[strings.ToUpper(segments[0])]
	if !ok {
		return RootPath{}, fmt.Errorf("%w: %q", ErrUnsupportedRoot, segments[0])
	}

	return RootPath{
		Hive:    hive,
		SubPath: strings.Join(segments[1:], `\`),
	}, nil
}

// Segments returns the path below the hive as its individual key names.
func (p RootPath) Segments() []string {
	return Split(p.SubPath)
}

// Name returns the last segment of the path, or the hive name for a hive
// root. It is used as the informational name of a snapshot's root node.
func (p RootPath) Name() string {
	segments := p.Segments()
	if len(segments) == 0 {
		return string(p.Hive)
	}
	return segments[len(segments)-1]
}

// String returns the canonical "HIVE\sub\path" form.
func (p RootPath) String() string {
	if p.SubPath == "" {
		return string(p.Hive)
	}
	return string(p.Hive) + `\` + p.SubPath
}

// Split splits a backslash-separated key path, dropping empty segments.
func Split(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, `\`) {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// Join joins a parent path and a child name.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + `\` + name
}
