package rtltcp

import (
	"encoding/binary"
	"fmt"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

const (
	CmdSetFreq       byte = 0x01
	CmdSetSampleRate byte = 0x02
	CmdSetGainMode   byte = 0x03
	CmdSetGain       byte = 0x04

	// HeaderSize is the size of the dongle info header sent by the server on connect.
	HeaderSize = 12

	// CommandSize is the size of a single command frame.
	CommandSize = 5

	magic = "RTL0"
)

// Command is a single client to server command frame.
type Command struct {
	ID    byte
	Param int32
}

// MarshalBinary encodes the command as 1 byte id followed by a 4 byte
// big-endian parameter.
func (c Command) MarshalBinary() ([]byte, error) {
	frame := make([]byte, CommandSize)
	frame[0] = c.ID
	binary.BigEndian.PutUint32(frame[1:], uint32(c.Param))
	return frame, nil
}

// UnmarshalBinary decodes a command frame.
func (c *Command) UnmarshalBinary(frame []byte) error {
	if len(frame) != CommandSize {
		return fmt.Errorf("rtltcp.Command: frame must be %d bytes: %d given", CommandSize, len(frame))
	}

	c.ID = frame[0]
	c.Param = int32(binary.BigEndian.Uint32(frame[1:]))
	return nil
}

func (c Command) String() string {
	switch c.ID {
	case CmdSetFreq:
		return fmt.Sprintf("SET_FREQ(%d)", c.Param)
	case CmdSetSampleRate:
		return fmt.Sprintf("SET_SAMPLE_RATE(%d)", c.Param)
	case CmdSetGainMode:
		return fmt.Sprintf("SET_GAIN_MODE(%d)", c.Param)
	case CmdSetGain:
		return fmt.Sprintf("SET_GAIN(%d)", c.Param)
	default:
		return fmt.Sprintf("CMD_%#02x(%d)", c.ID, c.Param)
	}
}

// Header is the dongle info sent by rtl_tcp immediately after accept.
type Header struct {
	Tuner     sdr.TunerType
	GainCount uint32
}

// ParseHeader decodes the dongle info header. A header without the "RTL0"
// magic is tolerated and leaves every field at its zero value.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("rtltcp.Header: short header: %d bytes", len(b))
	}

	var h Header
	if string(b[:4]) == magic {
		h.Tuner = sdr.TunerType(binary.BigEndian.Uint32(b[4:8]))
		h.GainCount = binary.BigEndian.Uint32(b[8:12])
	}
	return h, nil
}
