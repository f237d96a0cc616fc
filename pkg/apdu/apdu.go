// Package apdu defines the ISO 7816-4 command and response APDU shapes
// exchanged with a secure element.
package apdu

import (
	"fmt"
)

// Well-known status words.
const (
	SWSuccess              uint16 = 0x9000 // command completed normally
	SWSecurityNotSatisfied uint16 = 0x6982 // security status not satisfied
	SWAuthMethodBlocked    uint16 = 0x6983 // authentication method blocked
	SWConditionsNotMet     uint16 = 0x6985 // conditions of use not satisfied
	SWWrongData            uint16 = 0x6A80 // incorrect parameters in the data field
	SWWrongLength          uint16 = 0x6700 // wrong length
	SWInsNotSupported      uint16 = 0x6D00 // instruction not supported
	SWClaNotSupported      uint16 = 0x6E00 // class not supported
	SWUnknown              uint16 = 0x6F00 // no precise diagnosis
)

// MaxDataLen is the maximum data field length of a short-form command APDU.
const MaxDataLen = 255

// Command is a logical command APDU: a four-byte class/instruction/parameter
// header, an optional data field and the expected response length Ne.
type Command struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
	Ne   int
}

// Header returns the four header bytes CLA INS P1 P2.
func (c Command) Header() []byte {
	return []byte{c.Cla, c.Ins, c.P1, c.P2}
}

// Bytes serialises the command using short-form encoding.
func (c Command) Bytes() ([]byte, error) {
	if len(c.Data) > MaxDataLen {
		return nil, fmt.Errorf("apdu: data field too long: %d bytes", len(c.Data))
	}

	if c.Ne < 0 || c.Ne > 256 {
		return nil, fmt.Errorf("apdu: invalid Ne: %d", c.Ne)
	}

	out := make([]byte, 0, 4+1+len(c.Data)+1)
	out = append(out, c.Cla, c.Ins, c.P1, c.P2)

	if len(c.Data) > 0 {
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
	}

	if c.Ne > 0 {
		// Le of 0x00 requests the maximum of 256 bytes.
		out = append(out, byte(c.Ne%256))
	}

	return out, nil
}

// ParseCommand decodes a short-form command APDU. All four ISO 7816-3 cases
// are accepted.
func ParseCommand(raw []byte) (Command, error) {
	if len(raw) < 4 {
		return Command{}, fmt.Errorf("apdu: command too short: %d bytes", len(raw))
	}

	cmd := Command{Cla: raw[0], Ins: raw[1], P1: raw[2], P2: raw[3]}
	body := raw[4:]

	switch {
	case len(body) == 0:
		// case 1: header only
	case len(body) == 1:
		// case 2: Le only
		cmd.Ne = int(body[0])
		if cmd.Ne == 0 {
			cmd.Ne = 256
		}
	default:
		// case 3 or 4: Lc, data, optional Le
		lc := int(body[0])
		if len(body) < 1+lc {
			return Command{}, fmt.Errorf("apdu: command data truncated: Lc=%d, %d bytes left", lc, len(body)-1)
		}

		cmd.Data = append([]byte(nil), body[1:1+lc]...)

		switch rest := body[1+lc:]; len(rest) {
		case 0:
		case 1:
			cmd.Ne = int(rest[0])
			if cmd.Ne == 0 {
				cmd.Ne = 256
			}
		default:
			return Command{}, fmt.Errorf("apdu: %d trailing bytes after command data", len(rest))
		}
	}

	return cmd, nil
}

// Response is a logical response APDU: an optional data field followed by the
// two status word bytes.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// ParseResponse splits raw response bytes into data field and status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("apdu: response too short: %d bytes", len(raw))
	}

	data := make([]byte, len(raw)-2)
	copy(data, raw[:len(raw)-2])

	return Response{Data: data, SW1: raw[len(raw)-2], SW2: raw[len(raw)-1]}, nil
}

// Bytes serialises the response as data field followed by SW1 SW2.
func (r Response) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	out = append(out, r.SW1, r.SW2)

	return out
}

// SW returns the combined 16-bit status word.
func (r Response) SW() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// IsSuccess reports whether the status word is 0x9000.
func (r Response) IsSuccess() bool {
	return r.SW() == SWSuccess
}

func (r Response) String() string {
	return fmt.Sprintf("SW=%04X (%s) data=%d bytes", r.SW(), swDescription(r.SW()), len(r.Data))
}

// swDescription returns a human-readable description of a status word.
func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWSecurityNotSatisfied:
		return "security status not satisfied"
	case SWAuthMethodBlocked:
		return "authentication method blocked"
	case SWConditionsNotMet:
		return "conditions of use not satisfied"
	case SWWrongData:
		return "incorrect data field"
	case SWWrongLength:
		return "wrong length"
	case SWInsNotSupported:
		return "instruction not supported"
	case SWClaNotSupported:
		return "class not supported"
	case SWUnknown:
		return "no precise diagnosis"
	default:
		return "unknown status"
	}
}
