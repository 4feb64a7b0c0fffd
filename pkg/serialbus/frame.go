package serialbus

import (
	"fmt"

	"github.com/gwillem/dynamixel/pkg/protocol"
)

// Packet framing for protocol 2.0 instruction and status packets. Byte
// stuffing: any 0xFF 0xFF 0xFD run inside the payload gets an extra 0xFD
// appended so it cannot be mistaken for a header.

func stuff(params []byte) []byte {
	out := make([]byte, 0, len(params))
	run := 0
	for _, b := range params {
		out = append(out, b)
		switch {
		case run < 2 && b == 0xFF:
			run++
		case run == 2 && b == 0xFD:
			out = append(out, 0xFD)
			run = 0
		case run == 2 && b == 0xFF:
			// The last two bytes are still 0xFF 0xFF.
		default:
			run = 0
		}
	}
	return out
}

func unstuff(params []byte) []byte {
	out := make([]byte, 0, len(params))
	run := 0
	for i := 0; i < len(params); i++ {
		b := params[i]
		out = append(out, b)
		switch {
		case run < 2 && b == 0xFF:
			run++
		case run == 2 && b == 0xFD:
			// Drop the stuffing byte that follows.
			if i+1 < len(params) && params[i+1] == 0xFD {
				i++
			}
			run = 0
		case run == 2 && b == 0xFF:
			// The last two bytes are still 0xFF 0xFF.
		default:
			run = 0
		}
	}
	return out
}

// buildPacket frames an instruction packet for one device.
func buildPacket(id byte, inst protocol.Instruction, params []byte) []byte {
	body := stuff(params)
	length := len(body) + 3 // instruction + CRC
	pkt := make([]byte, 0, protocol.MinPacketLength+len(body))
	pkt = append(pkt, protocol.Header[0], protocol.Header[1], protocol.Header[2], protocol.Reserved)
	pkt = append(pkt, id, byte(length), byte(length>>8), byte(inst))
	pkt = append(pkt, body...)
	crc := protocol.UpdateCRC(0, pkt)
	pkt = append(pkt, byte(crc), byte(crc>>8))
	return pkt
}

// statusPacket is a parsed response.
type statusPacket struct {
	id     byte
	status byte
	params []byte
}

var errBadCRC = fmt.Errorf("status packet CRC mismatch")

// parseStatus validates and decodes one complete status packet.
func parseStatus(pkt []byte) (statusPacket, error) {
	if len(pkt) < protocol.MinPacketLength+1 {
		return statusPacket{}, fmt.Errorf("status packet too short: %d bytes", len(pkt))
	}
	if pkt[0] != protocol.Header[0] || pkt[1] != protocol.Header[1] || pkt[2] != protocol.Header[2] {
		return statusPacket{}, fmt.Errorf("bad header % x", pkt[:3])
	}
	if protocol.Instruction(pkt[7]) != protocol.InstStatus {
		return statusPacket{}, fmt.Errorf("not a status packet (instruction 0x%02x)", pkt[7])
	}
	length := int(pkt[5]) | int(pkt[6])<<8
	if len(pkt) != 7+length {
		return statusPacket{}, fmt.Errorf("length field %d does not match packet size %d", length, len(pkt))
	}
	want := uint16(pkt[len(pkt)-2]) | uint16(pkt[len(pkt)-1])<<8
	if got := protocol.UpdateCRC(0, pkt[:len(pkt)-2]); got != want {
		return statusPacket{}, errBadCRC
	}
	return statusPacket{
		id:     pkt[4],
		status: pkt[8],
		params: unstuff(pkt[9 : len(pkt)-2]),
	}, nil
}
