// Package image defines the on-disk container for windlass programs: a
// small fixed header followed by a canonical CBOR body.
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const (
	// Magic heads every image file.
	Magic = "WNDI"

	// Version is the current format version. Readers reject anything
	// newer than they understand.
	Version uint32 = 1

	headerSize = 12 // magic + version + flags
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Func is one named entry point into the code image.
type Func struct {
	Name  string `cbor:"1,keyasint"`
	Entry uint64 `cbor:"2,keyasint"`
}

// Image is a complete executable program: code plus the machine
// configuration it expects. Sizes of zero mean "use the defaults".
type Image struct {
	ID         uuid.UUID `cbor:"1,keyasint"`
	Name       string    `cbor:"2,keyasint"`
	Code       []byte    `cbor:"3,keyasint"`
	Funcs      []Func    `cbor:"4,keyasint"`
	StackSize  uint64    `cbor:"5,keyasint,omitempty"`
	MemorySize uint64    `cbor:"6,keyasint,omitempty"`
}

// New builds an image with a fresh identity.
func New(name string, code []byte) *Image {
	return &Image{
		ID:   uuid.New(),
		Name: name,
		Code: code,
	}
}

// Func returns the entry offset for a named function.
func (img *Image) Func(name string) (uint64, bool) {
	for _, f := range img.Funcs {
		if f.Name == name {
			return f.Entry, true
		}
	}
	return 0, false
}

// Marshal encodes the image into its wire form. The body is canonical
// CBOR, so equal images produce identical bytes.
func (img *Image) Marshal() ([]byte, error) {
	body, err := encMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: encoding body: %w", err)
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, Version)
	out = binary.LittleEndian.AppendUint32(out, 0) // flags, reserved
	return append(out, body...), nil
}

// Unmarshal decodes an image from its wire form.
func Unmarshal(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("image: %d bytes is too short for a header", len(data))
	}
	if !bytes.Equal(data[:4], []byte(Magic)) {
		return nil, fmt.Errorf("image: bad magic %q", data[:4])
	}
	version := binary.LittleEndian.Uint32(data[4:])
	if version > Version {
		return nil, fmt.Errorf("image: version %d is newer than supported version %d", version, Version)
	}
	if flags := binary.LittleEndian.Uint32(data[8:]); flags != 0 {
		return nil, fmt.Errorf("image: unknown flags %#x", flags)
	}

	var img Image
	if err := decMode.Unmarshal(data[headerSize:], &img); err != nil {
		return nil, fmt.Errorf("image: decoding body: %w", err)
	}
	return &img, nil
}

// WriteFile marshals the image to a file.
func (img *Image) WriteFile(path string) error {
	data, err := img.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: writing %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an image from a file.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: reading %s: %w", path, err)
	}
	return Unmarshal(data)
}
