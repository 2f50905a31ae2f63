package statefile

import (
	"bufio"
	"io"

	"github.com/soupd/soupd/internal/value"
)

// WriteParameters persists the Generate parameters value table atomically.
func WriteParameters(path string, v value.Value) error {
	return atomicWrite(path, func(w io.Writer) error {
		if err := writeHeader(w, magicParameters); err != nil {
			return err
		}
		return value.Encode(w, v)
	})
}

// TryLoadParameters loads a previously-written parameters table.
func TryLoadParameters(path string) (value.Value, error) {
	f, err := openForRead(path)
	if err != nil {
		return value.Value{}, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := readHeader(r, magicParameters); err != nil {
		return value.Value{}, err
	}
	v, err := value.Decode(r)
	if err != nil {
		return value.Value{}, xerrorsWrapCorrupt(err)
	}
	if err := checkNoTrailingBytes(r); err != nil {
		return value.Value{}, err
	}
	return v, nil
}
