package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MaxLineSize bounds a single JSONL line (16MB).
const MaxLineSize = 16 * 1024 * 1024

// ErrInputNotFound is returned when the input path does not exist.
var ErrInputNotFound = errors.New("input file not found")

// ParseError identifies a malformed record line. Line is 1-based and counts
// blank lines.
type ParseError struct {
	Path    string
	Line    int
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed record: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// MissingTimestamp controls records without ts_ms. Empty means MissingTimestampZero.
	MissingTimestamp MissingTimestamp
}

// Reader yields records from a JSONL source in file order.
// It can be iterated once.
type Reader struct {
	path    string
	src     io.Reader
	closers []io.Closer
	opts    ReaderOptions
	used    bool
}

// Open opens a JSONL file for reading. Paths ending in .gz are decompressed.
// A missing file yields an error wrapping ErrInputNotFound.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("opening input: %w", err)
	}

	r := &Reader{path: path, src: f, closers: []io.Closer{f}, opts: opts}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &ParseError{Path: path, Line: 0, Err: fmt.Errorf("opening gzip stream: %w", err)}
		}
		r.src = gz
		r.closers = append([]io.Closer{gz}, r.closers...)
	}
	return r, nil
}

// NewReader reads records from src. name is used in error messages.
func NewReader(name string, src io.Reader, opts ReaderOptions) *Reader {
	return &Reader{path: name, src: src, opts: opts}
}

// All returns an iterator over the records. Iteration stops at the first
// error, which is yielded with a zero Record. A second call yields a single error.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if r.used {
			yield(Record{}, errors.New("reader already consumed"))
			return
		}
		r.used = true

		missing := r.opts.MissingTimestamp
		if missing == "" {
			missing = MissingTimestampZero
		}

		scanner := bufio.NewScanner(r.src)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rec, err := Parse(line, missing)
			if err != nil {
				yield(Record{}, &ParseError{
					Path:    r.path,
					Line:    lineNum,
					Content: truncateForError(string(line)),
					Err:     err,
				})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Record{}, &ParseError{Path: r.path, Line: lineNum + 1, Err: err})
		}
	}
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Load reads every record from path. It fails fast on the first malformed line.
func Load(path string, opts ReaderOptions) ([]Record, error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var seq []Record
	for rec, err := range r.All() {
		if err != nil {
			return nil, err
		}
		seq = append(seq, rec)
	}
	return seq, nil
}

// truncateForError shortens a line for inclusion in error details.
func truncateForError(s string) string {
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
