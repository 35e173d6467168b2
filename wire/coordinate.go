package wire

import (
	"io"

	"github.com/hollowcrest/pixelwire/canvas"
)

// EncodeCoordinate writes c as two successive i16s: x then y.
func EncodeCoordinate(w io.Writer, c canvas.Coordinate) error {
	if err := EncodeI16(w, c.X); err != nil {
		return err
	}
	return EncodeI16(w, c.Y)
}

// DecodeCoordinate reads a Coordinate. ok is false if either axis decodes as
// "no value"; the "no value" propagates without reading further bytes for
// that axis, but a short y-read after a present x still consumes the bytes
// that were available.
func DecodeCoordinate(r io.Reader) (c canvas.Coordinate, ok bool, err error) {
	x, ok, err := DecodeI16(r)
	if err != nil || !ok {
		return canvas.Coordinate{}, false, err
	}
	y, ok, err := DecodeI16(r)
	if err != nil || !ok {
		return canvas.Coordinate{}, false, err
	}
	return canvas.Coordinate{X: x, Y: y}, true, nil
}
