package value

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes v as a tagged, length-prefixed binary stream. Callers that
// need an atomic, versioned file (the GenerateParameters format) wrap this
// with the envelope in internal/statefile.
func Encode(w io.Writer, v Value) error {
	if err := writeUint8(w, uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindTable:
		t := v.table
		if t == nil {
			t = NewEmptyTable()
		}
		keys := t.Keys()
		if err := writeUint32(w, uint32(len(keys))); err != nil {
			return err
		}
		for _, k := range keys {
			if err := writeString(w, k); err != nil {
				return err
			}
			ev, _ := t.Get(k)
			if err := Encode(w, ev); err != nil {
				return err
			}
		}
		return nil
	case KindList:
		if err := writeUint32(w, uint32(len(v.list))); err != nil {
			return err
		}
		for _, ev := range v.list {
			if err := Encode(w, ev); err != nil {
				return err
			}
		}
		return nil
	case KindString:
		return writeString(w, v.str)
	case KindInt64:
		return binary.Write(w, binary.LittleEndian, v.i64)
	case KindFloat64:
		return binary.Write(w, binary.LittleEndian, math.Float64bits(v.f64))
	case KindBool:
		b := uint8(0)
		if v.b {
			b = 1
		}
		return writeUint8(w, b)
	default:
		return fmt.Errorf("value: encode: unknown kind %v", v.kind)
	}
}

// Decode is the inverse of Encode.
func Decode(r io.Reader) (Value, error) {
	kindByte, err := readUint8(r)
	if err != nil {
		return Value{}, err
	}
	kind := Kind(kindByte)
	switch kind {
	case KindTable:
		count, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		t := NewEmptyTable()
		for i := uint32(0); i < count; i++ {
			k, err := readString(r)
			if err != nil {
				return Value{}, err
			}
			ev, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			t.Set(k, ev)
		}
		return NewTable(t), nil
	case KindList:
		count, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		list := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			ev, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			list = append(list, ev)
		}
		return NewList(list), nil
	case KindString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return NewString(s), nil
	case KindInt64:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return Value{}, err
		}
		return NewInt64(i), nil
	case KindFloat64:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return Value{}, err
		}
		return NewFloat64(math.Float64frombits(bits)), nil
	case KindBool:
		b, err := readUint8(r)
		if err != nil {
			return Value{}, err
		}
		return NewBool(b != 0), nil
	default:
		return Value{}, fmt.Errorf("value: decode: unknown kind byte %d", kindByte)
	}
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// writeString writes a length-prefixed (uint32) UTF-8 string, per the
// binary format requirements shared by all four persisted formats.
func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
