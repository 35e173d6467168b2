package wire

import "io"

// EncodeI16 writes v as two successive i8 bytes (hi, lo). Values in
// [-32512, 32512] round-trip through DecodeI16. For a larger magnitude the
// hi byte would be ±128, which EncodeI8 writes as the 0xFF sentinel, so
// such a value decodes as "no value".
func EncodeI16(w io.Writer, v int16) error {
	switch {
	case v >= -127 && v <= 127:
		if err := EncodeI8(w, 0); err != nil {
			return err
		}
		return EncodeI8(w, int8(v))
	case v >= 128:
		hi := int8((int32(v) + 127) / 255)
		lo := int8((int32(v)+127)%255 - 127)
		if err := EncodeI8(w, hi); err != nil {
			return err
		}
		return EncodeI8(w, lo)
	default: // v <= -128
		abs := int32(-v)
		hi := int8(-((abs + 127) / 255))
		lo := int8((abs+127)%255 - 127)
		if err := EncodeI8(w, hi); err != nil {
			return err
		}
		return EncodeI8(w, lo)
	}
}

// DecodeI16 reads two i8 bytes and returns the decoded value, or ok == false
// if either byte decodes as "no value".
func DecodeI16(r io.Reader) (v int16, ok bool, err error) {
	hi, ok, err := DecodeI8(r)
	if err != nil || !ok {
		return 0, false, err
	}
	lo, ok, err := DecodeI8(r)
	if err != nil || !ok {
		return 0, false, err
	}

	switch {
	case hi == 0:
		return int16(lo), true, nil
	case hi > 0:
		return int16(int32(hi)*255 + int32(lo) + 127 - 127), true, nil
	default:
		return -int16(int32(-hi)*255 + int32(lo) + 127 - 127), true, nil
	}
}
