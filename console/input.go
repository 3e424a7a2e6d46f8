package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ergochat/readline"
)

// ErrInterrupt is returned by a LineReader when the operator presses Ctrl-C
// at the prompt.
var ErrInterrupt = errors.New("interrupted")

// LineReader reads one line of operator input per call. It returns io.EOF
// when input is exhausted.
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

// ReadlineReader reads from a terminal with line editing.
type ReadlineReader struct {
	rl *readline.Instance
}

// NewReadlineReader opens a terminal line reader showing prompt.
func NewReadlineReader(prompt string) (*ReadlineReader, error) {
	rl, err := readline.NewFromConfig(&readline.Config{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return &ReadlineReader{rl: rl}, nil
}

func (r *ReadlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupt
	}
	return line, err
}

func (r *ReadlineReader) Close() error { return r.rl.Close() }

// ScannerReader reads lines from a non-interactive stream, writing prompt
// before each read.
type ScannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string
}

// NewScannerReader reads lines from in. prompt is written to out before each
// line; out may be nil.
func NewScannerReader(in io.Reader, out io.Writer, prompt string) *ScannerReader {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ScannerReader{scanner: s, out: out, prompt: prompt}
}

func (r *ScannerReader) ReadLine() (string, error) {
	if r.out != nil && r.prompt != "" {
		fmt.Fprint(r.out, r.prompt)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *ScannerReader) Close() error { return nil }
