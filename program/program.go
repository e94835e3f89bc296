// Package program loads guest program images. A program is identified by a
// base path; the image is <base>.bin, its instruction section <base>.text
// and its symbol table <base>.elf.
package program

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/log"
)

// Paths locates the files that make up one program.
type Paths struct {
	Bin  string
	Text string
	ELF  string
}

// Resolve derives the program's file paths from a CLI argument. A trailing
// .bin is optional.
func Resolve(arg string) Paths {
	base := strings.TrimSuffix(arg, ".bin")
	return Paths{
		Bin:  base + ".bin",
		Text: base + ".text",
		ELF:  base + ".elf",
	}
}

// Image is an immutable loaded program. The binary is placed at address 0
// and execution starts there.
type Image struct {
	Paths  Paths
	Binary []byte
	Words  []uint32 // little-endian words of Binary
	Text   []uint32 // instruction section; equal to Words when no .text exists
	Hash   common.Hash
}

// Load reads the program at arg. textPath overrides the derived .text path;
// an explicit override must exist, a derived one may be absent.
func Load(arg, textPath string) (*Image, error) {
	paths := Resolve(arg)
	explicitText := textPath != ""
	if explicitText {
		paths.Text = textPath
	}
	bin, err := os.ReadFile(paths.Bin)
	if err != nil {
		return nil, errs.WithPath(errs.ProgramLoadError, paths.Bin, err)
	}
	words, err := toWords(bin)
	if err != nil {
		return nil, errs.WithPath(errs.ProgramLoadError, paths.Bin, err)
	}
	img := &Image{
		Paths:  paths,
		Binary: bin,
		Words:  words,
		Hash:   crypto.Keccak256Hash(bin),
	}
	text, err := os.ReadFile(paths.Text)
	switch {
	case err == nil:
		if img.Text, err = toWords(text); err != nil {
			return nil, errs.WithPath(errs.ProgramLoadError, paths.Text, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicitText:
		log.Module("program").Debug("No text section, using binary image", "bin", paths.Bin)
		img.Text = words
	default:
		return nil, errs.WithPath(errs.ProgramLoadError, paths.Text, err)
	}
	return img, nil
}

// FromWords builds an image from instruction words, used by tests and
// in-memory callers. The words serve as both binary and text.
func FromWords(name string, words []uint32) *Image {
	bin := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(bin[i*4:], w)
	}
	return &Image{
		Paths:  Resolve(name),
		Binary: bin,
		Words:  append([]uint32(nil), words...),
		Text:   append([]uint32(nil), words...),
		Hash:   crypto.Keccak256Hash(bin),
	}
}

// Size returns the binary size in bytes.
func (img *Image) Size() int { return len(img.Binary) }

func toWords(data []byte) ([]uint32, error) {
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}
