package record

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Encode writes seq to w, one compact JSON object per line, in sequence order.
func Encode(w io.Writer, seq []Record) error {
	bw := bufio.NewWriter(w)
	for i, rec := range seq {
		line, err := rec.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		bw.Write(line)
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteResult describes a completed write.
type WriteResult struct {
	Path    string
	Records int
	// SHA256 is the hex digest of the bytes written to disk.
	SHA256 string
}

// WriteFile writes seq to path atomically via a temp file and rename, so a
// failed write never leaves a partial output behind. Paths ending in .gz are
// gzip-compressed.
func WriteFile(path string, seq []Record) (*WriteResult, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	sum := sha256.New()
	if err := encodeTo(io.MultiWriter(tmp, sum), path, seq); err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing temp output: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("setting output permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("renaming output file: %w", err)
	}

	return &WriteResult{Path: path, Records: len(seq), SHA256: digest(sum)}, nil
}

func encodeTo(w io.Writer, path string, seq []Record) error {
	if !strings.HasSuffix(path, ".gz") {
		return Encode(w, seq)
	}
	gzw := gzip.NewWriter(w)
	if err := Encode(gzw, seq); err != nil {
		return err
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return nil
}

func digest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
