package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the files the WAL-mode chunk store keeps next to its database.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsageBytes sums the on-disk size of corpus artifacts: the chunk database (with its WAL
// sidecars), chunks.json, the BM25 blob or bleve directory, the dense index and the embedding
// matrix. Empty and missing paths count as zero and a path given twice is counted once.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		n, err := artifactSize(p)
		if err != nil {
			return 0, err
		}
		total += n
		if filepath.Ext(p) == ".db" {
			for _, suffix := range sqliteSidecars {
				side, err := artifactSize(p + suffix)
				if err != nil {
					return 0, err
				}
				total += side
			}
		}
	}
	return total, nil
}

func artifactSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
