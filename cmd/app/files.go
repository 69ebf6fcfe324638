package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/partkit/internal/filetype"
)

func readFiles(paths []string) ([]filetype.File, error) {
	files := make([]filetype.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, filetype.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}
