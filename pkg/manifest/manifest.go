package manifest

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one regular file selected for sending.
type Entry struct {
	Path string // Local path to read from
	Name string // Name carried in the Header packet, forward slashes
	Size int64
}

// Manifest lists the files of one send in transmit order.
type Manifest struct {
	Entries    []Entry
	TotalBytes int64
}

// Build expands files and directories into a manifest of regular files.
// A directory contributes every file below it, named "<dir>/<relpath>".
// If several paths share a base name they are prefixed with an ordinal
// (1_, 2_, ...) in argument order. Entries are sorted by Name.
// Unreadable entries are skipped and reported in a joined error alongside
// the manifest built from the rest.
func Build(paths []string) (Manifest, error) {
	if len(paths) == 0 {
		return Manifest{}, fmt.Errorf("no paths provided")
	}

	var m Manifest
	var scanErrors []error

	bases := make([]string, len(paths))
	abs := make([]string, len(paths))
	baseNameCount := make(map[string]int)
	for i, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			scanErrors = append(scanErrors, fmt.Errorf("cannot get absolute path for %s: %w", path, err))
			continue
		}
		abs[i] = absPath
		bases[i] = baseName(absPath)
		baseNameCount[bases[i]]++
	}

	seen := make(map[string]int)
	for i, path := range paths {
		if abs[i] == "" {
			continue
		}
		info, err := os.Stat(abs[i])
		if err != nil {
			if os.IsNotExist(err) {
				scanErrors = append(scanErrors, fmt.Errorf("path does not exist: %s", path))
				continue
			}
			scanErrors = append(scanErrors, fmt.Errorf("cannot access path %s: %w", path, err))
			continue
		}

		name := bases[i]
		if baseNameCount[name] > 1 {
			seen[name]++
			name = fmt.Sprintf("%d_%s", seen[name], name)
		}

		if !info.IsDir() {
			if info.Mode().IsRegular() {
				m.add(Entry{Path: abs[i], Name: name, Size: info.Size()})
			}
			continue
		}

		root := abs[i]
		err = filepath.WalkDir(root, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				relPath, relErr := filepath.Rel(root, walkPath)
				if relErr != nil {
					relPath = walkPath
				}
				scanErrors = append(scanErrors, fmt.Errorf("cannot read %s: %w", relPath, err))
				if d == nil || !d.IsDir() {
					return nil
				}
				return fs.SkipDir
			}
			if !d.Type().IsRegular() {
				return nil
			}
			relPath, err := filepath.Rel(root, walkPath)
			if err != nil {
				return fmt.Errorf("cannot compute relative path: %w", err)
			}
			fullName := name + "/" + filepath.ToSlash(relPath)
			info, err := d.Info()
			if err != nil {
				scanErrors = append(scanErrors, fmt.Errorf("cannot get info for %s: %w", fullName, err))
				return nil
			}
			m.add(Entry{Path: walkPath, Name: fullName, Size: info.Size()})
			return nil
		})
		if err != nil {
			scanErrors = append(scanErrors, fmt.Errorf("error walking directory %s: %w", path, err))
		}
	}

	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].Name < m.Entries[j].Name
	})

	if len(scanErrors) > 0 {
		return m, fmt.Errorf("scan completed with %d error(s): %w", len(scanErrors), errors.Join(scanErrors...))
	}
	return m, nil
}

func (m *Manifest) add(e Entry) {
	m.Entries = append(m.Entries, e)
	m.TotalBytes += e.Size
}

func baseName(absPath string) string {
	switch b := filepath.Base(absPath); {
	case b == ".":
		return "current"
	case b == "/" || b == string(filepath.Separator):
		return "root"
	default:
		return b
	}
}

// ID returns a stable 16-character hex id for the manifest, derived from
// the FNV-1a hash of every entry name and size. It is empty for an empty
// manifest.
func ID(m Manifest) string {
	if len(m.Entries) == 0 {
		return ""
	}
	h := fnv.New64a()
	for _, e := range m.Entries {
		fmt.Fprintf(h, "%s|%d\n", e.Name, e.Size)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h.Sum64())
	return hex.EncodeToString(buf)
}
