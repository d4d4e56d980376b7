package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverTables returns the CSV files making up the dataset at root.
// A regular file is returned as-is; a directory is walked and every
// *.csv beneath it is returned in lexical order.
func DiscoverTables(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	entries := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".csv") {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}
