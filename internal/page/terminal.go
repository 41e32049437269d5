package page

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
)

// TerminalEnvironment describes a terminal as a page environment: the window
// size stands in for the screen resolution and LANG for the language.
func TerminalEnvironment(fd int, userAgent, referrer string) Environment {
	env := Environment{
		UserAgent: userAgent,
		Referrer:  referrer,
		Language:  languageTag(os.Getenv("LANG")),
	}
	if w, h, err := term.GetSize(fd); err == nil {
		env.ScreenResolution = fmt.Sprintf("%dx%d", w, h)
	}
	return env
}

// languageTag turns a POSIX locale such as "en_US.UTF-8" into "en-US".
func languageTag(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(locale, "_", "-")
}

// MakeRaw puts the terminal into raw mode so single key presses can be read.
func MakeRaw(fd int) (restore func(), err error) {
	if !term.IsTerminal(fd) {
		return nil, errors.New("not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// Terminal feeds key presses into a Page.
//
//	n        navigate to the next path
//	h        toggle visibility
//	q ^C ^D  quit
//
// Every other key is dispatched as a keypress.
type Terminal struct {
	Page  *Page
	Paths []string
	// OnNavigate is called with the new path after each navigation.
	OnNavigate func(path string)

	next int
}

// Run reads keys from r until quit or EOF. It does not unload the page.
func (t *Terminal) Run(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}

		switch b {
		case 'q', keyCtrlC, keyCtrlD:
			return nil
		case 'h':
			t.Page.SetHidden(!t.Page.Hidden())
		case 'n':
			t.navigate()
		default:
			t.Page.Dispatch(Event{Type: EventKeyPress})
		}
	}
}

func (t *Terminal) navigate() {
	if len(t.Paths) == 0 || t.OnNavigate == nil {
		return
	}
	path := t.Paths[t.next%len(t.Paths)]
	t.next++
	t.OnNavigate(path)
}
