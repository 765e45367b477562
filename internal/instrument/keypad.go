// Package instrument holds the command vocabulary of the Hidex Triathler and
// Perkin Elmer BetaScout scintillation counters. The instruments say plenty
// over RS-232 but accept almost nothing: the only writable commands are the
// sixteen single-byte codes corresponding to the 12 numeric keypad and 4
// softkey buttons on the front panel.
package instrument

import "fmt"

// Softkey and keypad control bytes.
const (
	KeyStart  byte = 0x3B
	KeyStop   byte = 0x3C
	KeyNext   byte = 0x3D
	KeySet    byte = 0x3E
	KeyEnter  byte = 0x3F
	KeyDelete byte = 0x40
)

var softkeys = map[string]byte{
	"start":  KeyStart,
	"stop":   KeyStop,
	"next":   KeyNext,
	"set":    KeySet,
	"enter":  KeyEnter,
	"delete": KeyDelete,
}

// Digit returns the keypad byte for one numeric key. The numeric keys send
// their ASCII values.
func Digit(n int) (byte, error) {
	if n < 0 || n > 9 {
		return 0, fmt.Errorf("keypad digit %d out of range", n)
	}
	return byte('0' + n), nil
}

// Press translates a command word into the bytes to write to the port. A
// word is either a softkey name (start, stop, next, set, enter, delete) or a
// string of digits, which becomes one keypad press per digit.
func Press(word string) ([]byte, error) {
	if b, ok := softkeys[word]; ok {
		return []byte{b}, nil
	}
	out := make([]byte, 0, len(word))
	for _, r := range word {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("unknown command %q: want a softkey name or digits", word)
		}
		b, _ := Digit(int(r - '0'))
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return out, nil
}
