package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MaxRecords bounds every record count read from a response.
const MaxRecords = 100_000

var (
	// ErrTruncated is returned when a response ends before all its fields were read.
	ErrTruncated = errors.New("truncated response")
	// ErrMalformed is returned when a field cannot be converted to its type.
	ErrMalformed = errors.New("malformed field")
)

// Tokens reads whitespace-separated fields from a driver response stream.
// Responses carry no length prefix, so callers consume exactly the number of
// fields the protocol defines for each record.
type Tokens struct {
	sc   *bufio.Scanner
	read int
}

// NewTokens wraps r. Line breaks are treated like any other whitespace.
func NewTokens(r io.Reader) *Tokens {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &Tokens{sc: sc}
}

// Read returns the number of tokens consumed so far.
func (t *Tokens) Read() int {
	return t.read
}

// Next returns the next raw token, or io.EOF when the stream is exhausted.
func (t *Tokens) Next() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	t.read++
	return t.sc.Text(), nil
}

// String reads a token that must be present.
func (t *Tokens) String(field string) (string, error) {
	tok, err := t.Next()
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%s at token %d: %w", field, t.read, ErrTruncated)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	return tok, nil
}

// Int reads an integer field. Values serialized as whole floats ("32.00") are accepted.
func (t *Tokens) Int(field string) (int, error) {
	tok, err := t.String(field)
	if err != nil {
		return 0, err
	}
	v, err := parseIntFromFloat(tok)
	if err != nil {
		return 0, fmt.Errorf("%s %q at token %d: %w", field, tok, t.read, ErrMalformed)
	}
	return int(v), nil
}

// Count reads a record count in [0, MaxRecords].
func (t *Tokens) Count(field string) (int, error) {
	n, err := t.Int(field)
	if err != nil {
		return 0, err
	}
	return checkCount(field, n, t.read)
}

func checkCount(field string, n, at int) (int, error) {
	if n < 0 || n > MaxRecords {
		return 0, fmt.Errorf("%s %d at token %d out of range [0,%d]: %w", field, n, at, MaxRecords, ErrMalformed)
	}
	return n, nil
}

// Float reads a finite real-valued field.
func (t *Tokens) Float(field string) (float64, error) {
	tok, err := t.String(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s %q at token %d: %w", field, tok, t.read, ErrMalformed)
	}
	return v, nil
}
