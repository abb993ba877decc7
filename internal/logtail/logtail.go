package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const chunkSize = 32 * 1024

// Read returns at most maxLines from the end of the file at path, oldest
// first. A missing file yields no lines and no error.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	// Read backwards in chunks until enough newlines have been seen.
	var tail []byte
	offset := info.Size()
	for offset > 0 && bytes.Count(tail, []byte{'\n'}) <= maxLines {
		n := int64(chunkSize)
		if n > offset {
			n = offset
		}
		offset -= n
		buf := make([]byte, n)
		if _, err := file.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		tail = append(buf, tail...)
	}

	text := strings.TrimRight(string(tail), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if offset > 0 {
		// The first line is cut off at the chunk boundary.
		lines = lines[1:]
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines, nil
}

// String joins the last maxLines of path for inclusion in an error message.
func String(path string, maxLines int) string {
	lines, err := Read(path, maxLines)
	if err != nil {
		return ""
	}
	return strings.Join(lines, "\n")
}
