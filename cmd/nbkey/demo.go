package main

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kungfusheep/nbkey"
)

// demo holds the state the key actions mutate. It is only touched from
// the polling goroutine.
type demo struct {
	out     io.Writer
	words   []string
	started time.Time
	presses int
	quit    bool

	query string
	match string
}

func newDemo(out io.Writer, words []string) *demo {
	return &demo{out: out, words: words, started: time.Now()}
}

func (d *demo) keymap() nbkey.Keymap {
	return nbkey.Keymap{
		nbkey.KeyDefault: {nbkey.DoKey(func(k nbkey.Key) {
			d.printf("Char %q pressed!", k.String())
		})},
		nbkey.R('H'): {nbkey.Do(func() { d.printf("Hello world!") })},
		nbkey.KeyAll: {nbkey.Do(func() { d.presses++ })},
	}
}

// bind registers the rebindable actions.
func (d *demo) bind(disp *nbkey.Dispatcher) {
	disp.Bind("quit", nbkey.R('q'), nbkey.Do(func() { d.quit = true }))
	disp.Bind("search", nbkey.R('/'), nbkey.Do(func() {
		d.query, d.match = "", ""
		disp.EnterPassthrough(func(k nbkey.Key) error {
			d.searchKey(disp, k)
			return nil
		})
	}))
}

// searchKey edits the incremental search query while in passthrough.
func (d *demo) searchKey(disp *nbkey.Dispatcher, k nbkey.Key) {
	switch k {
	case nbkey.KeyEscape:
		disp.ExitPassthrough()
		d.printf("search cancelled")
		return
	case nbkey.KeyEnter:
		disp.ExitPassthrough()
		if d.match == "" {
			d.printf("no match for %q", d.query)
		} else {
			d.printf("selected %s", d.match)
		}
		return
	case nbkey.KeyBackspace:
		if d.query != "" {
			_, size := utf8.DecodeLastRuneInString(d.query)
			d.query = d.query[:len(d.query)-size]
		}
	default:
		d.query += k.Text()
	}
	d.match = d.find(d.query)
}

func (d *demo) find(query string) string {
	if query == "" {
		return ""
	}
	q := strings.ToLower(query)
	for _, w := range d.words {
		if strings.Contains(strings.ToLower(w), q) {
			return w
		}
	}
	return ""
}

// tick redraws the status line. It returns false once quit was requested.
func (d *demo) tick() (bool, error) {
	if d.quit {
		return false, nil
	}
	status := fmt.Sprintf("[%s] keys=%d", time.Since(d.started).Truncate(time.Second), d.presses)
	if d.query != "" || d.match != "" {
		status += fmt.Sprintf(" search=%q match=%q", d.query, d.match)
	}
	fmt.Fprintf(d.out, "\r\x1b[K%s", status)
	return true, nil
}

func (d *demo) printf(format string, args ...any) {
	fmt.Fprintf(d.out, "\r\x1b[K"+format+"\r\n", args...)
}
