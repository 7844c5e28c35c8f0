package proto

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// DefaultMaxLineBytes bounds a single line when no limit is configured.
const DefaultMaxLineBytes = 4096

// ErrLineTooLong is returned when a peer sends a line over the limit.
var ErrLineTooLong = errors.New("line too long")

// LineReader splits a byte stream into newline-terminated lines, buffering
// partial reads until the terminator arrives.
type LineReader struct {
	scanner  *bufio.Scanner
	maxBytes int
}

// NewLineReader reads lines of at most maxBytes (excluding the terminator).
func NewLineReader(r io.Reader, maxBytes int) *LineReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}
	sc := bufio.NewScanner(r)
	// +2 leaves room for "\r\n" so maxBytes is the payload limit
	sc.Buffer(make([]byte, 0, min(maxBytes+2, 4096)), maxBytes+2)
	sc.Split(scanLines)
	return &LineReader{scanner: sc, maxBytes: maxBytes}
}

// ReadLine returns the next line without its terminator. Invalid UTF-8 is
// replaced with U+FFFD. io.EOF means the peer closed cleanly.
func (r *LineReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		// The buffer admits maxBytes+1 before a bare "\n".
		if len(r.scanner.Bytes()) > r.maxBytes {
			return "", ErrLineTooLong
		}
		return strings.ToValidUTF8(r.scanner.Text(), "\uFFFD"), nil
	}
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return "", io.EOF
}

// scanLines is bufio.ScanLines except that a final unterminated fragment is
// dropped: a line only counts once its newline arrived.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line := data[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		return i + 1, line, nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// SingleLine replaces embedded line breaks with spaces.
func SingleLine(text string) string {
	if !strings.ContainsAny(text, "\r\n") {
		return text
	}
	return lineBreaks.Replace(text)
}

// FormatLine makes text safe to send as exactly one line and appends the
// terminator.
func FormatLine(text string) []byte {
	text = SingleLine(text)
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	return append(buf, '\n')
}

// WriteLine writes text as one framed line.
func WriteLine(w io.Writer, text string) error {
	_, err := w.Write(FormatLine(text))
	return err
}
