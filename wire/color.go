package wire

import (
	"io"

	"github.com/hollowcrest/pixelwire/canvas"
)

// EncodeColor packs the three 5-bit channels into a single signed i16: the
// sign of the outer integer recovers the high bit of r that the 15-bit
// payload alone can't carry.
func EncodeColor(w io.Writer, c canvas.Color) error {
	payload := int32(c.R&0x0F)<<10 | int32(c.G&0x1F)<<5 | int32(c.B&0x1F)
	var q int16
	if c.R&0x10 == 0 {
		q = int16(1 + payload)
	} else {
		q = int16(-1 - payload)
	}
	return EncodeI16(w, q)
}

// DecodeColor reads a packed Color. "No value" propagates; a decoded q == 0
// is also treated as "no value" (the encoding never produces it).
func DecodeColor(r io.Reader) (c canvas.Color, ok bool, err error) {
	q, ok, err := DecodeI16(r)
	if err != nil || !ok {
		return canvas.Color{}, false, err
	}
	if q == 0 {
		return canvas.Color{}, false, nil
	}

	var x int32
	if q > 0 {
		x = int32(q) - 1
	} else {
		x = -int32(q) - 1 + 16384
	}

	return canvas.Color{
		R: uint8((x >> 10) & 0x1F),
		G: uint8((x >> 5) & 0x1F),
		B: uint8(x & 0x1F),
	}, true, nil
}
