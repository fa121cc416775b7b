// Package tagreader reads RFID tags from an ID-20LA style reader.
//
// Each tag arrives as a 16-byte frame:
//
//	STX | 10 ASCII hex digits | 2 ASCII hex checksum | CR LF ETX
//
// The checksum is the XOR of the five bytes encoded by the tag digits.
package tagreader

import (
	"errors"
	"fmt"
	"strconv"
)

// FrameSize is the length of one tag frame in bytes.
const FrameSize = 16

const (
	tagStart = 1
	tagEnd   = 11
	sumEnd   = 13
)

var (
	ErrShortFrame = errors.New("short tag frame")
	ErrBadHex     = errors.New("tag is not hexadecimal")
	ErrChecksum   = errors.New("tag checksum mismatch")
)

// Checksum XORs the five bytes encoded by ten hex digits.
func Checksum(hexTag []byte) (byte, error) {
	if len(hexTag) != tagEnd-tagStart {
		return 0, fmt.Errorf("%w: %d digits", ErrBadHex, len(hexTag))
	}
	var sum byte
	for i := 0; i < len(hexTag); i += 2 {
		v, err := strconv.ParseUint(string(hexTag[i:i+2]), 16, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadHex, hexTag)
		}
		sum ^= byte(v)
	}
	return sum, nil
}

// Decode extracts the tag value from a frame. When verify is set the
// checksum digits must match.
func Decode(frame []byte, verify bool) (uint64, error) {
	if len(frame) < FrameSize {
		return 0, fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, len(frame), FrameSize)
	}
	digits := frame[tagStart:tagEnd]
	tag, err := strconv.ParseUint(string(digits), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadHex, digits)
	}
	if !verify {
		return tag, nil
	}
	want, err := Checksum(digits)
	if err != nil {
		return 0, err
	}
	got, err := strconv.ParseUint(string(frame[tagEnd:sumEnd]), 16, 8)
	if err != nil || byte(got) != want {
		return 0, fmt.Errorf("%w: tag %q checksum %q", ErrChecksum, digits, frame[tagEnd:sumEnd])
	}
	return tag, nil
}

// Encode builds a well-formed frame for tag. Used by the simulator and tests.
func Encode(tag uint64) []byte {
	digits := []byte(fmt.Sprintf("%010X", tag&0xFF_FFFF_FFFF))
	sum, _ := Checksum(digits)
	frame := make([]byte, 0, FrameSize)
	frame = append(frame, 0x02)
	frame = append(frame, digits...)
	frame = append(frame, fmt.Sprintf("%02X", sum)...)
	frame = append(frame, '\r', '\n', 0x03)
	return frame
}
