package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	optionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

// Console is a Channel backed by a terminal reader/writer.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a console channel on the given streams. Nil streams
// default to stdin/stdout.
func NewConsole(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Console{in: bufio.NewReader(in), out: out}
}

// Display implements Channel.
func (c *Console) Display(ctx context.Context, message string, level Level) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var styled string
	switch level {
	case LevelWarning:
		styled = warningStyle.Render(message)
	case LevelError:
		styled = errorStyle.Render(message)
	default:
		styled = infoStyle.Render(message)
	}
	_, err := fmt.Fprintln(c.out, styled)
	return err
}

// Prompt implements Channel. The read happens on a separate goroutine so the
// timeout and context can interrupt the wait; a late line is discarded.
func (c *Console) Prompt(ctx context.Context, question string, options []string, timeout time.Duration) (string, error) {
	var b strings.Builder
	b.WriteString(promptStyle.Render(question))
	b.WriteString("\n")
	for i, opt := range options {
		b.WriteString(optionStyle.Render(fmt.Sprintf("%d. %s", i+1, opt)))
		b.WriteString("\n")
	}
	b.WriteString("> ")
	if _, err := fmt.Fprint(c.out, b.String()); err != nil {
		return "", err
	}

	type lineResult struct {
		text string
		err  error
	}
	lineCh := make(chan lineResult, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		lineCh <- lineResult{text: strings.TrimSpace(line), err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-lineCh:
		if res.err != nil && res.text == "" {
			return "", res.err
		}
		return resolveOption(res.text, options), nil
	case <-timeoutCh:
		return "", context.DeadlineExceeded
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// resolveOption maps a numeric reply onto the option list.
func resolveOption(text string, options []string) string {
	if len(options) == 0 {
		return text
	}
	for i, opt := range options {
		if text == fmt.Sprintf("%d", i+1) {
			return opt
		}
	}
	return text
}

var _ Channel = (*Console)(nil)
