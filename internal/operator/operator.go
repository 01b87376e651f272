// Package operator talks to the person running vhist: it asks for SMS
// codes and CAPTCHA guesses and announces steps that need their action.
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Terminal prompts on a terminal with a huh form, or reads plain lines
// when input is piped.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	tty    bool

	mu    sync.Mutex
	once  sync.Once
	lines chan line
}

// line is one read from the piped input. err is set on the last one.
type line struct {
	text string
	err  error
}

// New returns a Terminal on in and out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Terminal{in: in, out: out, logger: logger}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.tty = true
	}
	return t
}

// Stdio returns a Terminal on the process's standard streams.
func Stdio(logger *slog.Logger) *Terminal {
	return New(os.Stdin, os.Stderr, logger)
}

// Prompt blocks until the operator enters a non-empty value.
func (t *Terminal) Prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.logger.Info("operator: input required", "prompt", label)
	if t.tty {
		return t.promptForm(ctx, label)
	}
	return t.promptLine(ctx, label)
}

func (t *Terminal) promptForm(ctx context.Context, label string) (string, error) {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(label).
				Value(&value).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a value is required")
					}
					return nil
				}),
		),
	).WithInput(t.in).WithOutput(t.out)

	if err := form.RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("operator: %s: %w", label, err)
	}
	return strings.TrimSpace(value), nil
}

// readLines feeds t.lines from in until the first read error, then
// closes it. It reads at most one line ahead of the prompts.
func (t *Terminal) readLines() {
	r := bufio.NewReader(t.in)
	for {
		s, err := r.ReadString('\n')
		t.lines <- line{text: s, err: err}
		if err != nil {
			close(t.lines)
			return
		}
	}
}

func (t *Terminal) promptLine(ctx context.Context, label string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.once.Do(func() {
		t.lines = make(chan line, 1)
		go t.readLines()
	})
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(t.out, "%s: ", label)
		var ln line
		var ok bool
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ln, ok = <-t.lines:
		}
		if !ok {
			return "", fmt.Errorf("operator: %s: %w", label, io.ErrUnexpectedEOF)
		}
		if v := strings.TrimSpace(ln.text); v != "" {
			return v, nil
		}
		if ln.err != nil {
			if errors.Is(ln.err, io.EOF) {
				return "", fmt.Errorf("operator: %s: %w", label, io.ErrUnexpectedEOF)
			}
			return "", fmt.Errorf("operator: %s: %w", label, ln.err)
		}
	}
}

// Notify shows msg to the operator.
func (t *Terminal) Notify(_ context.Context, msg string) {
	t.logger.Info("operator: notice", "message", msg)
	fmt.Fprintln(t.out, msg)
}
