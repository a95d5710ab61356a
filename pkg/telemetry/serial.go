package telemetry

import (
	"fmt"
	"strings"
	"time"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"go.bug.st/serial"
)

// PortOptions describes the serial link parameters of a live telemetry feed.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
	// ReadTimeout keeps a poll from blocking the scheduler.
	ReadTimeout time.Duration `json:"-"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Millisecond
	}
	return opts, nil
}

// SerialMode converts the options into what go.bug.st/serial opens ports with.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialSource reads telemetry from a serial port. A read that times out
// returns no bytes and no error.
type SerialSource struct {
	port serial.Port
}

func OpenSerialSource(path string, opts PortOptions) (*SerialSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	opts, _ = opts.Normalize()

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: path, Err: err}
	}
	source, err := NewSerialSource(port, opts.ReadTimeout)
	if err != nil {
		port.Close()
		return nil, err
	}
	return source, nil
}

// NewSerialSource wraps an already opened port.
func NewSerialSource(port serial.Port, timeout time.Duration) (*SerialSource, error) {
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("setting serial read timeout: %w", err)
	}
	return &SerialSource{port: port}, nil
}

func (s *SerialSource) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}
