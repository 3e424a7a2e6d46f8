// Package console is the line-based operator interface: it reads prompts,
// hands them to the session and renders session events as they arrive.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/frixaco/llm/agentloop"
)

// Farewell is printed when the operator interrupts the program.
const Farewell = "Always ready to eat your tokens!"

// clearLine moves the cursor up one line and erases it.
const clearLine = "\x1b[1A\x1b[2K\r"

var quitTokens = map[string]bool{
	"quit":  true,
	"exit":  true,
	"end":   true,
	"/quit": true,
	"/exit": true,
}

// IsQuit reports whether line asks to leave the program.
func IsQuit(line string) bool {
	return quitTokens[strings.ToLower(strings.TrimSpace(line))]
}

// Submitter runs one turn. *agentloop.Session implements it.
type Submitter interface {
	Submit(ctx context.Context, input string) error
}

// Console renders a session for an operator.
type Console struct {
	in       LineReader
	out      io.Writer
	styles   Styles
	username string
	live     bool
	logger   *slog.Logger

	mu         sync.Mutex
	toolNames  map[string]string
	statusLine string // call id whose status is the last printed line
	midLine    bool
}

// Option configures a Console.
type Option func(*Console)

// WithStyles sets the color palette.
func WithStyles(s Styles) Option {
	return func(c *Console) { c.styles = s }
}

// WithUsername sets the name used in the greeting.
func WithUsername(name string) Option {
	return func(c *Console) { c.username = name }
}

// WithLiveStatus rewrites tool status lines in place. Only useful on a
// terminal.
func WithLiveStatus(live bool) Option {
	return func(c *Console) { c.live = live }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) { c.logger = logger }
}

// New creates a Console reading from in and writing to out.
func New(in LineReader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		in:        in,
		out:       out,
		styles:    PlainStyles(),
		username:  "there",
		toolNames: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Run greets the operator and submits each non-empty line until a quit
// token, end of input or an interrupt at the prompt. Failed turns are
// reported through HandleEvent and do not stop the loop.
func (c *Console) Run(ctx context.Context, s Submitter) error {
	c.println(c.styles.Greeting.Render(fmt.Sprintf("Ready to help, %s!", c.username)))

	for {
		line, err := c.in.ReadLine()
		switch {
		case errors.Is(err, ErrInterrupt):
			c.Farewell()
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if IsQuit(line) {
			return nil
		}
		if line == "" {
			continue
		}

		err = s.Submit(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, agentloop.ErrTurnAborted):
			if ctx.Err() != nil {
				return ctx.Err()
			}
		case errors.Is(err, agentloop.ErrEmptyInput):
		default:
			return err
		}
	}
}

// Farewell prints the interrupt message.
func (c *Console) Farewell() {
	c.println("\n" + c.styles.Farewell.Render(Farewell))
}

// HandleEvent renders one session event. It is meant to be installed as
// the session's EventHandler.
func (c *Console) HandleEvent(ev agentloop.SessionEvent) {
	switch ev.Kind {
	case agentloop.EventAssistantTextDelta:
		delta := ev.String("delta")
		c.write(paint(c.styles.Assistant, delta), strings.HasSuffix(delta, "\n"))

	case agentloop.EventToolCallStart:
		name, id := ev.String("tool_name"), ev.String("call_id")
		c.mu.Lock()
		c.toolNames[id] = name
		c.mu.Unlock()
		c.status(id, fmt.Sprintf("- Calling %s tool...", name))

	case agentloop.EventToolCallArgsDelta:
		id := ev.String("call_id")
		c.mu.Lock()
		name, rewrite := c.toolNames[id], c.live && c.statusLine == id
		c.mu.Unlock()
		if rewrite {
			c.status(id, fmt.Sprintf("- %s tool is running...", name))
		}

	case agentloop.EventToolCallEnd:
		name, id := ev.String("tool_name"), ev.String("call_id")
		msg := fmt.Sprintf("- %s tool finished running", name)
		if ev.String("status") != string(agentloop.ToolStatusSuccess) {
			msg = fmt.Sprintf("- %s tool failed to complete", name)
			c.logger.Debug("tool failed", "tool", name, "call_id", id, "output", ev.String("output"))
		}
		c.status(id, msg)
		c.mu.Lock()
		delete(c.toolNames, id)
		c.mu.Unlock()

	case agentloop.EventTurnFinished:
		c.endLine()
		c.println("")

	case agentloop.EventTurnLimit:
		c.endLine()
		c.println(c.styles.Warning.Render(fmt.Sprintf("Stopped after %v steps", ev.Data["steps"])))

	case agentloop.EventWarning:
		c.endLine()
		c.println(c.styles.Warning.Render(ev.String("message")))

	case agentloop.EventError:
		c.endLine()
		c.println(c.styles.Error.Render(ev.String("error")))

	case agentloop.EventReset:
		c.println("Resetting conversation")
	}
}

// status prints a tool status line, replacing the previous one when it
// belongs to the same call and nothing was printed since.
func (c *Console) status(callID, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := c.styles.Tool.Render(msg)
	switch {
	case c.live && c.statusLine == callID:
		fmt.Fprintln(c.out, clearLine+line)
	case c.midLine:
		fmt.Fprintln(c.out, "\n"+line)
	default:
		fmt.Fprintln(c.out, line)
	}
	c.statusLine = callID
	c.midLine = false
}

func (c *Console) write(s string, endsLine bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
	c.statusLine = ""
	c.midLine = !endsLine
}

// endLine terminates streamed text that did not end with a newline.
func (c *Console) endLine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
	c.statusLine = ""
	c.midLine = false
}

// paint styles each line separately so the text keeps its line breaks.
func paint(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
