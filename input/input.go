// Package input decodes the hex text files that feed non-deterministic words
// to a guest program. Every 8 hex characters form one big-endian 32-bit word.
package input

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eth2030/airbender/errs"
)

// WordHexLen is the number of hex characters per input word.
const WordHexLen = 8

// Parse decodes hex text into input words. ASCII whitespace anywhere in the
// text is ignored, as is a single leading 0x/0X. An empty stream is valid.
func Parse(text string) ([]uint32, error) {
	hex := stripWhitespace(text)
	if strings.HasPrefix(hex, "0x") || strings.HasPrefix(hex, "0X") {
		hex = hex[2:]
	}
	if hex == "" {
		return []uint32{}, nil
	}
	if len(hex)%WordHexLen != 0 {
		return nil, errs.New(errs.MalformedInput,
			"input hex length must be a multiple of %d (got %d)", WordHexLen, len(hex))
	}
	raw, err := hexutil.Decode("0x" + hex)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedInput, err, "invalid hex word")
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

// ParseNonEmpty is Parse for callers that require at least one word.
func ParseNonEmpty(text string) ([]uint32, error) {
	words, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errs.New(errs.MalformedInput, "input stream is empty")
	}
	return words, nil
}

// ReadFile loads and decodes an input file. Errors name the path.
func ReadFile(path string, requireNonEmpty bool) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WithPath(errs.IOError, path, err)
	}
	parse := Parse
	if requireNonEmpty {
		parse = ParseNonEmpty
	}
	words, err := parse(string(data))
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			e.Path = path
			return nil, e
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return words, nil
}

// Encode renders words in canonical form: 0x followed by 8 lowercase hex
// characters per word. Parse(Encode(w)) returns w.
func Encode(words []uint32) string {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(raw[i*4:], w)
	}
	return hexutil.Encode(raw)
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
