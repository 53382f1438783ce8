package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"golang.org/x/term"
)

var errNotInteractive = errors.New("interactive input is not available")

// prompter asks for missing connection details on the terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter() *prompter {
	return &prompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
		fd:  int(os.Stdin.Fd()), //nolint:gosec // file descriptors fit in int
	}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	text, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && text != "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(text), nil
}

func (p *prompter) password(label string) (models.Secret, error) {
	if !term.IsTerminal(p.fd) {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), errNotInteractive)
	}

	fmt.Fprintf(p.out, "%s: ", label)
	raw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return models.Secret(raw), nil
}
