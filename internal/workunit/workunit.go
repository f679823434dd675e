// Package workunit discovers the time directories a running simulation
// writes under its output root.
//
// Each immediate subdirectory of the root is one unit of work. Its name is a
// simulation time written as a decimal or scientific numeral ("5e-05",
// "0.0015"), and units are ordered by that numeric value rather than
// lexically. Names that do not parse as numbers take the value 0 and so sort
// first; ties fall back to the name so the order is total.
package workunit

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrDirectoryNotFound reports a missing watched root. Callers must not treat
// it as "no work yet".
var ErrDirectoryNotFound = errors.New("watched directory not found")

// DefaultExcluded are the initial-condition and mesh directories every case
// carries; neither is simulation output.
var DefaultExcluded = []string{"0", "constant"}

// Unit is one simulation output directory.
type Unit struct {
	ID   string
	Path string
	Time float64
	// Numeric is false when ID did not parse and Time fell back to 0.
	Numeric bool
}

// ParseTime returns the numeric value of a unit identifier. Unparsable names
// report ok=false and a value of 0. NaN is treated as unparsable so that the
// ordering stays total.
func ParseTime(id string) (value float64, ok bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(id), 64)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// List returns the immediate subdirectories of root, minus the excluded
// names, in ascending numeric order. Regular files and other non-directories
// are ignored. Symlinks to directories count as directories.
func List(root string, excluded []string) ([]Unit, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}

	units := make([]Unit, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if _, ok := skip[name]; ok {
			continue
		}
		path := filepath.Join(root, name)
		if !isDir(entry, path) {
			continue
		}
		value, ok := ParseTime(name)
		units = append(units, Unit{ID: name, Path: path, Time: value, Numeric: ok})
	}
	Sort(units)
	return units, nil
}

// Sort orders units ascending by time, breaking ties on ID.
func Sort(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Time != units[j].Time {
			return units[i].Time < units[j].Time
		}
		return units[i].ID < units[j].ID
	})
}

// IDs extracts the identifiers of units in order.
func IDs(units []Unit) []string {
	ids := make([]string, len(units))
	for i, unit := range units {
		ids[i] = unit.ID
	}
	return ids
}

func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
