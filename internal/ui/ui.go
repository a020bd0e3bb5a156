package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Alerter shows a dismissible message to the user.
type Alerter interface {
	Alert(title, message string)
}

// Confirmer asks the user to explicitly accept a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

type Console struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	start sync.Once
	lines chan line
}

type line struct {
	text string
	err  error
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Alert(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n[%s] %s\n", title, message)
}

// Printf writes to the console without interleaving with alerts.
func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Confirm prompts on the console and accepts y or yes. Anything else, or
// end of input, declines.
func (c *Console) Confirm(ctx context.Context, title, message string) (bool, error) {
	answer, err := c.ReadLine(ctx, fmt.Sprintf("\n[%s] %s [y/N]: ", title, message))
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ReadLine prints prompt and waits for the next input line. It returns io.EOF
// once input is exhausted.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	c.Printf("%s", prompt)
	c.start.Do(func() {
		c.lines = make(chan line)
		go c.pump()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

// pump is the only reader of the input so a line abandoned by a cancelled
// ReadLine goes to the next caller.
func (c *Console) pump() {
	defer close(c.lines)
	for {
		text, err := c.in.ReadString('\n')
		if text != "" {
			c.lines <- line{text: strings.TrimRight(text, "\r\n")}
		}
		if err != nil {
			if err != io.EOF {
				c.lines <- line{err: err}
			}
			return
		}
	}
}

// AutoConfirm answers every confirmation with a fixed value.
type AutoConfirm bool

func (a AutoConfirm) Confirm(context.Context, string, string) (bool, error) {
	return bool(a), nil
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []Message
}

type Message struct {
	Title string
	Body  string
}

func (r *Recorder) Alert(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, Message{Title: title, Body: message})
}

func (r *Recorder) Alerts() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.alerts...)
}
