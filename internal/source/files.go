package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTableName is the report name for a file: its lower-cased base name
// without extension.
func FileTableName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ListFiles returns path itself when it is a file, or the files directly under
// it whose extension matches exts (case-insensitively), in name order.
func ListFiles(path string, exts []string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// FileTables turns files into tables, keeping only names listed in only when
// only is non-empty.
func FileTables(files []string, only []string) []Table {
	var keep map[string]bool
	if len(only) > 0 {
		keep = make(map[string]bool, len(only))
		for _, t := range only {
			keep[strings.ToLower(t)] = true
		}
	}
	out := make([]Table, 0, len(files))
	for _, f := range files {
		name := FileTableName(f)
		if keep != nil && !keep[name] {
			continue
		}
		out = append(out, Table{Name: name, Location: f})
	}
	return out
}
