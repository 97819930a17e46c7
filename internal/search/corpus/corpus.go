// Package corpus reads the line-oriented text file the engines search over.
// Lines are returned with trailing line terminators, carriage returns, and
// NUL bytes stripped; original file order is preserved.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Scanner buffer sizing. Corpus lines are unbounded by the wire protocol,
// so allow lines well past the query payload cap.
const (
	initialBufSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// Clean strips the trailing bytes the protocol ignores from a raw line.
func Clean(line string) string {
	return strings.TrimRight(line, "\x00\r")
}

// Load reads the whole file into an ordered line slice. When foldCase is
// set every line is lower-cased, matching case-insensitive engines.
func Load(path string, foldCase bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	err = scan(f, foldCase, func(line string) bool {
		lines = append(lines, line)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return lines, nil
}

// LoadBytes reads the raw file contents for engines that scan without
// materializing a line slice.
func LoadBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return data, nil
}

// ScanFile streams the file line by line through fn without keeping the
// corpus in memory. fn returns false to stop early.
func ScanFile(path string, foldCase bool, fn func(line string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()
	if err := scan(f, foldCase, fn); err != nil {
		return fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return nil
}

// Scan streams lines from an arbitrary reader, applying the same cleaning
// rules as Load.
func Scan(r io.Reader, foldCase bool, fn func(line string) bool) error {
	return scan(r, foldCase, fn)
}

func scan(r io.Reader, foldCase bool, fn func(line string) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialBufSize), maxLineSize)
	for sc.Scan() {
		line := Clean(sc.Text())
		if foldCase {
			line = strings.ToLower(line)
		}
		if !fn(line) {
			return nil
		}
	}
	return sc.Err()
}
