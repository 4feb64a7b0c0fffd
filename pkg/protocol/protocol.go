// Package protocol holds Dynamixel Protocol 2.0 wire constants: instruction
// codes, packet framing values, the CRC-16 used by status packets, and
// decoding of device status and hardware error bytes.
package protocol

// Instruction is a protocol 2.0 instruction code.
type Instruction byte

const (
	InstPing         Instruction = 0x01
	InstRead         Instruction = 0x02
	InstWrite        Instruction = 0x03
	InstRegWrite     Instruction = 0x04
	InstAction       Instruction = 0x05
	InstFactoryReset Instruction = 0x06
	InstReboot       Instruction = 0x08
	InstClear        Instruction = 0x10
	InstStatus       Instruction = 0x55
	InstSyncRead     Instruction = 0x82
	InstSyncWrite    Instruction = 0x83
	InstBulkRead     Instruction = 0x92
	InstBulkWrite    Instruction = 0x93
)

// Packet framing.
const (
	BroadcastID = 0xFE
	MaxID       = 0xFC

	Reserved        = 0x00
	MaxPacketLength = 256
	// Header(3) + reserved(1) + ID(1) + length(2) + instruction(1) + CRC(2).
	MinPacketLength = 10
)

// Header is the three-byte packet preamble.
var Header = [3]byte{0xFF, 0xFF, 0xFD}

// Status byte values in a response packet. AlertBit flags a hardware
// alert on top of any status code.
const (
	StatusOK          = 0x00
	StatusResultFail  = 0x01
	StatusInstruction = 0x02
	StatusCRC         = 0x03
	StatusDataRange   = 0x04
	StatusDataLength  = 0x05
	StatusDataLimit   = 0x06
	StatusAccess      = 0x07

	AlertBit = 0x80
)

// crcTable is the CRC-16 (poly 0x8005, MSB first) table used by protocol
// 2.0 packets.
var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// UpdateCRC folds data into a running CRC accumulator. Start from 0 for a
// fresh packet.
func UpdateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		i := byte(crc>>8) ^ b
		crc = crc<<8 ^ crcTable[i]
	}
	return crc
}

// Hardware error status bits reported in the HARDWARE_ERROR_STATUS
// register and alert responses.
const (
	ErrBitInputVoltage    = 0x01
	ErrBitOverheating     = 0x02
	ErrBitMotorEncoder    = 0x04
	ErrBitElectricalShock = 0x08
	ErrBitOverload        = 0x10
)

var errBitNames = []struct {
	bit  byte
	name string
}{
	{ErrBitInputVoltage, "input voltage error"},
	{ErrBitOverheating, "overheating error"},
	{ErrBitMotorEncoder, "motor encoder error"},
	{ErrBitElectricalShock, "electrical shock error"},
	{ErrBitOverload, "overload error"},
}

// DecodeErrorBits expands a hardware error byte into readable condition
// names. Nil means no fault.
func DecodeErrorBits(b byte) []string {
	var out []string
	for _, e := range errBitNames {
		if b&e.bit != 0 {
			out = append(out, e.name)
		}
	}
	return out
}

// Baudrate register codes and their speeds in bits per second.
var baudrates = map[byte]int{
	0: 9_600,
	1: 57_600,
	2: 115_200,
	3: 1_000_000,
	4: 2_000_000,
	5: 3_000_000,
	6: 4_000_000,
	7: 4_500_000,
}

// BaudrateBPS returns the bit rate for a BAUD_RATE register code.
func BaudrateBPS(code byte) (int, bool) {
	bps, ok := baudrates[code]
	return bps, ok
}

// BaudrateCode returns the BAUD_RATE register code for a bit rate.
func BaudrateCode(bps int) (byte, bool) {
	for code, b := range baudrates {
		if b == bps {
			return code, true
		}
	}
	return 0, false
}
