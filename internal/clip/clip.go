// Package clip copies finished reports to the user's clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the report copyable.
type Method string

const (
	MethodNative Method = "native"
	MethodOSC52  Method = "osc52"
	// MethodFile means no clipboard was reachable and the report was saved
	// to a temp file instead.
	MethodFile Method = "file"
)

// Result describes where the report went.
type Result struct {
	Method   Method
	FilePath string
}

// osc52Limit keeps payloads under what common terminals accept.
const osc52Limit = 100_000

// Copier tries the native clipboard, then the terminal's OSC52 clipboard,
// then a temp file.
type Copier struct {
	native  func(string) error
	term    io.Writer
	isTTY   func() bool
	getenv  func(string) string
	tempDir string
}

// New returns a Copier that writes OSC52 sequences to stderr.
func New() *Copier {
	return &Copier{
		native: atotto.WriteAll,
		term:   os.Stderr,
		isTTY:  func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
		getenv: os.Getenv,
	}
}

// Copy makes text available to paste.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.native != nil && c.native(text) == nil {
		return Result{Method: MethodNative}, nil
	}
	if c.writeOSC52(text) == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.writeTempFile(text)
	if err != nil {
		return Result{}, fmt.Errorf("saving report copy: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func (c *Copier) writeOSC52(text string) error {
	if c.term == nil || c.isTTY == nil || !c.isTTY() {
		return errors.New("no terminal for OSC52")
	}
	if len(text) > osc52Limit {
		return fmt.Errorf("report too large for OSC52 (%d bytes)", len(text))
	}

	seq := osc52.New(text).Limit(osc52Limit)
	switch {
	case c.getenv("TMUX") != "":
		seq = seq.Tmux()
	case c.getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.term)
	return err
}

func (c *Copier) writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(c.tempDir, "aether-report-*.md")
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	_, err = io.WriteString(f, text)
	return f.Name(), err
}
