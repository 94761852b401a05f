package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxRecordSize bounds a single journal line. Longer lines are skipped on read.
const MaxRecordSize = 4 << 20

// maxArgsSize is the argument budget of a record whose full form is too long.
const maxArgsSize = 1 << 20

// Journal is an append-only JSON Lines file of Results. Many wrapper
// processes may append to the same file at once: each record is a single
// write on an O_APPEND descriptor, so records never interleave.
type Journal struct {
	path string
}

// OpenJournal returns a journal at path. The file is created on first append.
func OpenJournal(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append writes r as one line.
func (j *Journal) Append(r *Result) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append journal record: %w", err)
	}
	return f.Close()
}

// ReadAll returns every readable record in file order and the number of
// lines skipped because they could not be parsed. A missing journal is empty.
func (j *Journal) ReadAll() ([]*Result, int, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var (
		results []*Result
		skipped int
	)
	br := bufio.NewReaderSize(f, 64*1024)
	for {
		line, oversize, err := readRecord(br)
		if len(line) > 0 || oversize {
			if r := decodeRecord(line, oversize); r != nil {
				results = append(results, r)
			} else {
				skipped++
			}
		}
		if errors.Is(err, io.EOF) {
			return results, skipped, nil
		}
		if err != nil {
			return results, skipped, fmt.Errorf("read journal: %w", err)
		}
	}
}

// encodeRecord renders r as one line no longer than MaxRecordSize,
// truncating its arguments when needed.
func encodeRecord(r *Result) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode journal record: %w", err)
	}
	if len(data)+1 > MaxRecordSize {
		short := *r
		short.Args = truncateArgs(r.Args, maxArgsSize)
		short.ArgsTruncated = true
		if data, err = json.Marshal(&short); err != nil {
			return nil, fmt.Errorf("encode journal record: %w", err)
		}
		if len(data)+1 > MaxRecordSize {
			return nil, fmt.Errorf("journal record %s is %d bytes even with truncated arguments", r.ID, len(data))
		}
	}
	return append(data, '\n'), nil
}

// truncateArgs keeps leading arguments up to budget bytes. The argument that
// crosses the budget is cut short.
func truncateArgs(args []string, budget int) []string {
	var out []string
	for _, a := range args {
		if len(a) > budget {
			if budget > 0 {
				out = append(out, a[:budget])
			}
			break
		}
		out = append(out, a)
		budget -= len(a)
	}
	return out
}

// readRecord returns the next line without its newline. A line longer than
// MaxRecordSize is consumed and reported as oversize with no data.
func readRecord(br *bufio.Reader) (line []byte, oversize bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversize {
			if len(line)+len(chunk) > MaxRecordSize {
				oversize, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), oversize, err
	}
}

func decodeRecord(line []byte, oversize bool) *Result {
	if oversize {
		return nil
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	var r Result
	if err := json.Unmarshal(line, &r); err != nil || r.ID == "" {
		return nil
	}
	return &r
}

// Tail returns the last n records, newest first. n <= 0 returns all.
func (j *Journal) Tail(n int) ([]*Result, error) {
	all, _, err := j.ReadAll()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]*Result, n)
	for i := 0; i < n; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}
