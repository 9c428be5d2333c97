package source

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CheckCharset reports whether name is a known encoding label. The empty
// name means UTF-8.
func CheckCharset(name string) error {
	if name == "" {
		return nil
	}
	if _, err := htmlindex.Get(name); err != nil {
		return fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return nil
}

// DecodeReader converts r from charset to UTF-8. A leading byte order mark is
// honoured and removed whatever the declared charset.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	dec := unicode.UTF8.NewDecoder()
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
		}
		dec = enc.NewDecoder()
	}
	return transform.NewReader(r, unicode.BOMOverride(dec.Transformer)), nil
}
