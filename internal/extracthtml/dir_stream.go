package extracthtml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"cuiregistry/internal/cui"
)

// FileRow is one authority row extracted from a saved detail page.
type FileRow struct {
	cui.Record
	SourceFile string `json:"source_file"`
}

// StreamFromDir streams a single JSON array to w with one object per
// authority row found in the files of dir, each tagged with "source_file".
//
//   - stable ordering by filename
//   - unreadable/unparseable files are skipped
//   - a file may contribute any number of rows
func StreamFromDir(w io.Writer, dir string, policy DetailPolicy, enc *json.Encoder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		rows, err := ExtractAuthorities(string(b), policy)
		if err != nil {
			continue
		}

		for _, r := range rows {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("write comma: %w", err)
				}
			}
			first = false
			if err := enc.Encode(FileRow{Record: r.Record(cui.CategoryLink{}), SourceFile: e.Name()}); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
