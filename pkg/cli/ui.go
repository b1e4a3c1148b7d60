package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// UI abstracts user interaction so we can support both interactive
// and non-interactive modes and keep things testable. Every UI is also a
// deploy.Prompter.
type UI interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Ask(prompt string) (string, error)
	Confirm(prompt string) (bool, error)
}

type stdUI struct {
	in  *bufio.Reader
	out io.Writer

	// ctx, when set, aborts a prompt that is waiting for input.
	ctx     context.Context
	pending chan line
}

type line struct {
	text string
	err  error
}

// NewStdUI returns a UI backed by stdin/stdout.
func NewStdUI() UI {
	return newUI(os.Stdin, os.Stdout)
}

func newUI(in io.Reader, out io.Writer) *stdUI {
	return &stdUI{in: bufio.NewReader(in), out: out}
}

func (u *stdUI) Println(a ...any) {
	fmt.Fprintln(u.out, a...)
}

func (u *stdUI) Printf(format string, a ...any) {
	fmt.Fprintf(u.out, format, a...)
}

// Ask prints prompt and reads one line. A final line without a newline is
// accepted; end of input with nothing typed is an error.
func (u *stdUI) Ask(prompt string) (string, error) {
	u.Printf("%s", prompt)
	text, err := u.readLine()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if text == "" {
			return "", fmt.Errorf("no answer given: %w", err)
		}
	}
	return strings.TrimSpace(text), nil
}

func (u *stdUI) Confirm(prompt string) (bool, error) {
	ans, err := u.Ask(fmt.Sprintf("%s (yes/no): ", prompt))
	if err != nil {
		return false, err
	}
	ans = strings.ToLower(strings.TrimSpace(ans))
	return ans == "y" || ans == "yes", nil
}

// readLine reads the next line from the input, giving up when ctx is done.
// A read abandoned by a cancelled prompt is picked up by the next one.
func (u *stdUI) readLine() (string, error) {
	if u.ctx == nil {
		return u.in.ReadString('\n')
	}
	if err := u.ctx.Err(); err != nil {
		return "", err
	}
	if u.pending == nil {
		ch := make(chan line, 1)
		go func() {
			text, err := u.in.ReadString('\n')
			ch <- line{text: text, err: err}
		}()
		u.pending = ch
	}
	select {
	case l := <-u.pending:
		u.pending = nil
		return l.text, l.err
	case <-u.ctx.Done():
		return "", u.ctx.Err()
	}
}
