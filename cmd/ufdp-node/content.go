package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ursa-labs/ufdp/frame"
)

// dirContentSource serves content out of a directory of flat files, each
// named by its hex-encoded content id and split into fixed-size chunks on
// read. It has no inclusion-proof scheme of its own (chunks are served
// with an empty proof); wiring in a real one is left to whatever
// blockstore a production deployment sits on top of.
type dirContentSource struct {
	dir       string
	chunkSize int
}

func newDirContentSource(dir string, chunkSize int) *dirContentSource {
	return &dirContentSource{dir: dir, chunkSize: chunkSize}
}

func (d *dirContentSource) path(hash frame.ContentID) string {
	return filepath.Join(d.dir, hex.EncodeToString(hash[:]))
}

func (d *dirContentSource) TotalChunks(hash frame.ContentID) (uint64, bool, error) {
	info, err := os.Stat(d.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	size := info.Size()
	total := (size + int64(d.chunkSize) - 1) / int64(d.chunkSize)
	if total == 0 {
		total = 1
	}
	return uint64(total), true, nil
}

func (d *dirContentSource) Chunk(hash frame.ContentID, index uint64) ([]byte, []byte, error) {
	f, err := os.Open(d.path(hash))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	offset := index * uint64(d.chunkSize)
	if _, err := f.Seek(int64(offset), 0); err != nil {
		return nil, nil, err
	}

	buf := make([]byte, d.chunkSize)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return nil, nil, fmt.Errorf("reading chunk %d: %w", index, err)
	}
	return buf[:n], nil, nil
}
