package nbkey

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Modifier represents key modifiers (Ctrl, Alt, Shift).
type Modifier uint8

const (
	ModNone Modifier = 0
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
)

// Special represents special (non-printable) keys.
type Special uint8

const (
	SpecialNone Special = iota
	SpecialEscape
	SpecialEnter
	SpecialTab
	SpecialSpace
	SpecialBackspace

	// Synthetic keys. They are never produced by a KeyReader and only
	// exist as keymap entries.
	SpecialDefault
	SpecialAll
)

// Key represents a single keypress with optional modifiers.
type Key struct {
	Rune    rune
	Mod     Modifier
	Special Special
}

var (
	// KeyDefault binds actions for keys that have no explicit binding.
	KeyDefault = Key{Special: SpecialDefault}
	// KeyAll binds actions fired for every key outside passthrough.
	KeyAll = Key{Special: SpecialAll}

	// KeyInterrupt is Ctrl-C. The reader stops on it and never queues it.
	KeyInterrupt = Key{Rune: 'c', Mod: ModCtrl}
	// KeyEndOfInput is Ctrl-D. The reader stops on it and never queues it.
	KeyEndOfInput = Key{Rune: 'd', Mod: ModCtrl}

	KeyEscape    = Key{Special: SpecialEscape}
	KeyEnter     = Key{Special: SpecialEnter}
	KeyTab       = Key{Special: SpecialTab}
	KeySpace     = Key{Special: SpecialSpace}
	KeyBackspace = Key{Special: SpecialBackspace}
)

const (
	byteInterrupt  = 0x03
	byteEndOfInput = 0x04
)

// R returns the plain key for a printable rune.
func R(r rune) Key {
	if r == ' ' {
		return KeySpace
	}
	return Key{Rune: r}
}

// Ctrl returns the Ctrl chord for a letter.
func Ctrl(r rune) Key {
	return Key{Rune: r, Mod: ModCtrl}
}

// Synthetic reports whether k is one of the keymap-only keys.
func (k Key) Synthetic() bool {
	return k.Special == SpecialDefault || k.Special == SpecialAll
}

// Text returns the text a key inserts, or "" for control keys.
func (k Key) Text() string {
	if k == KeySpace {
		return " "
	}
	if k.Special != SpecialNone || k.Mod != ModNone || k.Rune == 0 {
		return ""
	}
	return string(k.Rune)
}

// String returns a vim-style representation of the key.
func (k Key) String() string {
	if k.Special == SpecialNone && k.Mod == ModNone && k.Rune != 0 {
		return string(k.Rune)
	}

	var parts []string
	if k.Mod&ModCtrl != 0 {
		parts = append(parts, "C")
	}
	if k.Mod&ModAlt != 0 {
		parts = append(parts, "A")
	}
	if k.Mod&ModShift != 0 {
		parts = append(parts, "S")
	}

	var keyPart string
	if k.Special != SpecialNone {
		keyPart = specialToVim[k.Special]
	} else if k.Rune != 0 {
		keyPart = string(k.Rune)
	}

	if len(parts) > 0 || k.Special != SpecialNone {
		return "<" + strings.Join(append(parts, keyPart), "-") + ">"
	}
	return keyPart
}

var specialToVim = map[Special]string{
	SpecialEscape:    "Esc",
	SpecialEnter:     "CR",
	SpecialTab:       "Tab",
	SpecialSpace:     "Space",
	SpecialBackspace: "BS",
	SpecialDefault:   "Default",
	SpecialAll:       "All",
}

var vimToSpecial = map[string]Special{
	"esc":       SpecialEscape,
	"escape":    SpecialEscape,
	"cr":        SpecialEnter,
	"enter":     SpecialEnter,
	"return":    SpecialEnter,
	"tab":       SpecialTab,
	"space":     SpecialSpace,
	"bs":        SpecialBackspace,
	"backspace": SpecialBackspace,
	"default":   SpecialDefault,
	"all":       SpecialAll,
}

// ParseKey parses a single key in vim notation: "j", "<C-w>", "<Esc>",
// "<Space>", "<Default>".
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("empty key")
	}
	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		return R(r), nil
	}
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return Key{}, fmt.Errorf("invalid key %q: expected one character or <...>", s)
	}
	return parseVimKey(s[1 : len(s)-1])
}

// parseVimKey parses the content inside <...>
func parseVimKey(s string) (Key, error) {
	var key Key
	parts := strings.Split(s, "-")

	for i, part := range parts {
		lower := strings.ToLower(part)

		// Modifiers are only valid before the final part
		if i < len(parts)-1 {
			switch lower {
			case "c":
				key.Mod |= ModCtrl
				continue
			case "a", "m":
				key.Mod |= ModAlt
				continue
			case "s":
				key.Mod |= ModShift
				continue
			}
			return Key{}, fmt.Errorf("invalid modifier %q in <%s>", part, s)
		}

		if special, ok := vimToSpecial[lower]; ok {
			key.Special = special
		} else if utf8.RuneCountInString(part) == 1 {
			key.Rune, _ = utf8.DecodeRuneInString(part)
		} else {
			return Key{}, fmt.Errorf("unknown key <%s>", s)
		}
	}

	if key.Synthetic() && key.Mod != ModNone {
		return Key{}, fmt.Errorf("modifiers not allowed on <%s>", s)
	}
	return key, nil
}

// decodeByte handles single-byte input.
func decodeByte(b byte) Key {
	switch {
	case b == 27:
		return KeyEscape
	case b == 13 || b == 10:
		return KeyEnter
	case b == 9:
		return KeyTab
	case b == 127 || b == 8:
		return KeyBackspace
	case b == 0:
		return Key{Rune: ' ', Mod: ModCtrl} // Ctrl+Space
	case b < 27:
		// Ctrl+A through Ctrl+Z (1-26)
		return Key{Rune: rune('a' + b - 1), Mod: ModCtrl}
	case b == 32:
		return KeySpace
	default:
		return Key{Rune: rune(b)}
	}
}

// decoder assembles keys from a byte stream fed one byte at a time.
// Invalid UTF-8 is dropped without producing a key.
type decoder struct {
	buf  [utf8.UTFMax]byte
	n    int
	need int
}

func (d *decoder) feed(b byte) (Key, bool) {
	if d.n > 0 {
		if b&0xC0 == 0x80 {
			d.buf[d.n] = b
			d.n++
			if d.n < d.need {
				return Key{}, false
			}
			r, size := utf8.DecodeRune(d.buf[:d.n])
			d.reset()
			if r == utf8.RuneError && size <= 1 {
				return Key{}, false
			}
			return Key{Rune: r}, true
		}
		// truncated sequence
		d.reset()
	}

	switch {
	case b < utf8.RuneSelf:
		return decodeByte(b), true
	case b >= 0xC2 && b <= 0xDF:
		d.need = 2
	case b >= 0xE0 && b <= 0xEF:
		d.need = 3
	case b >= 0xF0 && b <= 0xF4:
		d.need = 4
	default:
		return Key{}, false
	}
	d.buf[0] = b
	d.n = 1
	return Key{}, false
}

func (d *decoder) reset() {
	d.n = 0
	d.need = 0
}
