package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompt is an interactive signature request shown to the key holder.
type Prompt struct {
	UserID  string
	Method  string
	Summary string
	Payload string
}

// Approver decides interactive signature prompts. Returning an error that
// wraps domain.ErrUserRejected declines the prompt.
type Approver interface {
	Approve(ctx context.Context, p Prompt) error
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, p Prompt) error

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, p Prompt) error { return f(ctx, p) }

// AutoApprover accepts every prompt. Used for headless deployments.
type AutoApprover struct{}

// Approve implements Approver.
func (AutoApprover) Approve(context.Context, Prompt) error { return nil }

// RejectAll declines every prompt.
type RejectAll struct{}

// Approve implements Approver.
func (RejectAll) Approve(context.Context, Prompt) error {
	return &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
}

// TerminalApprover asks on a terminal and accepts only "y" or "yes". One
// goroutine owns the input for the approver's lifetime; an answer typed after
// a prompt was cancelled answers the next prompt.
type TerminalApprover struct {
	mu    sync.Mutex
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan string
}

// NewTerminalApprover reads answers from in and writes prompts to out.
func NewTerminalApprover(in io.Reader, out io.Writer) *TerminalApprover {
	return &TerminalApprover{in: in, out: out, lines: make(chan string)}
}

// readLines feeds t.lines until in fails, then closes it.
func (t *TerminalApprover) readLines() {
	defer close(t.lines)
	sc := bufio.NewScanner(t.in)
	for sc.Scan() {
		t.lines <- strings.ToLower(strings.TrimSpace(sc.Text()))
	}
}

// Approve implements Approver.
func (t *TerminalApprover) Approve(ctx context.Context, p Prompt) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.once.Do(func() { go t.readLines() })

	fmt.Fprintf(t.out, "\nSignature request (%s)\n  %s\n", p.Method, p.Summary)
	if p.Payload != "" {
		fmt.Fprintf(t.out, "  payload: %s\n", p.Payload)
	}
	fmt.Fprint(t.out, "Approve? [y/N]: ")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case a, ok := <-t.lines:
		if ok && (a == "y" || a == "yes") {
			return nil
		}
		return &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
}
