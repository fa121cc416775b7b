package tagreader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// BaudRate of the reader's serial link.
const BaudRate = 9600

// readTimeout bounds each read once a frame has started arriving.
const readTimeout = 250 * time.Millisecond

// Port is the part of a serial port the reader uses.
type Port interface {
	io.Reader
	ResetInputBuffer() error
	Close() error
}

// Reader decodes frames from a port. Any read or decode failure discards
// the input buffer so the next frame starts clean.
type Reader struct {
	port   Port
	verify bool
	logger *slog.Logger
}

// NewReader wraps an open port.
func NewReader(port Port, verify bool, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{port: port, verify: verify, logger: logger}
}

// OpenSerial opens name at 9600 8N1 and discards anything already buffered.
func OpenSerial(name string, verify bool, logger *slog.Logger) (*Reader, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open tag reader %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set tag reader timeout: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("flush tag reader: %w", err)
	}
	return NewReader(p, verify, logger), nil
}

// ReadTag reads and decodes one frame.
func (r *Reader) ReadTag() (uint64, error) {
	frame := make([]byte, FrameSize)
	n, err := readFrame(r.port, frame)
	if err != nil {
		r.discard()
		return 0, fmt.Errorf("read tag: %w", err)
	}
	tag, err := Decode(frame[:n], r.verify)
	if err != nil {
		r.logger.Debug("tag decode failed", "frame", fmt.Sprintf("%q", frame[:n]), "error", err)
		r.discard()
		return 0, err
	}
	return tag, nil
}

// readFrame fills buf. A read that returns no bytes and no error is a
// timeout; it ends the frame early.
func readFrame(rd io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := rd.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

// ClearBuffer discards unread input.
func (r *Reader) ClearBuffer() error {
	return r.port.ResetInputBuffer()
}

func (r *Reader) discard() {
	if err := r.port.ResetInputBuffer(); err != nil {
		r.logger.Warn("failed to flush tag reader", "error", err)
	}
}

// Close closes the port.
func (r *Reader) Close() error {
	return r.port.Close()
}
