package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scan lists the subfolders and supported media files of dir. Folders
// come first; each group is ordered by name.
func Scan(ctx context.Context, dir string) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}

	var folders, files []Entry
	for _, d := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := filepath.Join(abs, d.Name())
		e := Entry{Name: d.Name(), Path: full, URL: FileURL(full)}
		if d.IsDir() {
			e.Kind = KindFolder
		} else {
			kind, ok := KindForName(d.Name())
			if !ok {
				continue
			}
			e.Kind = kind
		}
		if info, err := d.Info(); err == nil {
			mt := info.ModTime()
			e.ModTime = &mt
			if !d.IsDir() {
				e.Size = info.Size()
			}
		}
		if e.Kind == KindFolder {
			folders = append(folders, e)
		} else {
			files = append(files, e)
		}
	}

	byName := func(list []Entry) {
		sort.SliceStable(list, func(i, j int) bool {
			return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
		})
	}
	byName(folders)
	byName(files)
	return append(folders, files...), nil
}

// ScanFolder is Scan with failures collapsed to an empty listing.
func ScanFolder(ctx context.Context, dir string) []Entry {
	entries, err := Scan(ctx, dir)
	if err != nil {
		slog.Warn("scan failed", "dir", dir, "err", err)
		return []Entry{}
	}
	return entries
}

// Parent returns the parent directory of dir, or "" at a filesystem root.
func Parent(dir string) string {
	clean := filepath.Clean(dir)
	parent := filepath.Dir(clean)
	if parent == clean {
		return ""
	}
	return parent
}
