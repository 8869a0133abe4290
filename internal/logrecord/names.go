package logrecord

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// utf16Native matches the byte order the driver writes WCHAR strings in.
var utf16Native = func() unicode.Endianness {
	if byteOrder.Uint16([]byte{1, 0}) == 1 {
		return unicode.LittleEndian
	}
	return unicode.BigEndian
}()

// decodeNames converts a UTF-16 name payload into its NUL-separated
// substrings. A trailing odd byte is ignored. The result always has at least
// one element.
func decodeNames(b []byte) ([]string, error) {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}

	text, err := unicode.UTF16(utf16Native, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decoding UTF-16 names: %w", err)
	}
	return strings.Split(string(text), "\x00"), nil
}

// encodeNames writes names as UTF-16, each followed by a NUL.
func encodeNames(names []string) ([]byte, error) {
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte(0)
	}

	out, err := unicode.UTF16(utf16Native, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("encoding UTF-16 names: %w", err)
	}
	return out, nil
}
