package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCommand turns a command string from the admin console into raw bytes
// for the port. If every whitespace-separated token parses as a byte value
// (hex with 0x prefix, or decimal), the tokens become the bytes; otherwise
// the whole string is sent literally.
func ParseCommand(command string) ([]byte, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	raw := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimPrefix(f, "0x"), 16, 8)
		if strings.HasPrefix(f, "0x") && err != nil {
			return nil, fmt.Errorf("bad hex byte %q: %w", f, err)
		}
		if !strings.HasPrefix(f, "0x") {
			v, err = strconv.ParseUint(f, 10, 8)
		}
		if err != nil {
			// not numeric: treat the whole command as literal text
			return []byte(command), nil
		}
		raw = append(raw, byte(v))
	}
	return raw, nil
}
