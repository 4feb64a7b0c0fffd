package protocol

import (
	"reflect"
	"testing"
)

func TestUpdateCRCPingPacket(t *testing.T) {
	// Ping to ID 1, the reference vector from the protocol docs. The CRC
	// covers everything before the CRC bytes themselves.
	pkt := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01}
	if got := UpdateCRC(0, pkt); got != 0x4E19 {
		t.Fatalf("UpdateCRC(ping) = %#04x, want 0x4e19", got)
	}
}

func TestUpdateCRCIncremental(t *testing.T) {
	pkt := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01}
	crc := UpdateCRC(0, pkt[:4])
	crc = UpdateCRC(crc, pkt[4:])
	if crc != UpdateCRC(0, pkt) {
		t.Fatal("incremental CRC differs from single-pass CRC")
	}
}

func TestDecodeErrorBits(t *testing.T) {
	tests := []struct {
		b    byte
		want []string
	}{
		{0x00, nil},
		{0x01, []string{"input voltage error"}},
		{0x05, []string{"input voltage error", "motor encoder error"}},
		{0x1F, []string{
			"input voltage error", "overheating error", "motor encoder error",
			"electrical shock error", "overload error",
		}},
	}
	for _, tt := range tests {
		if got := DecodeErrorBits(tt.b); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("DecodeErrorBits(%#02x) = %v, want %v", tt.b, got, tt.want)
		}
	}
}

func TestBaudrateRoundTrip(t *testing.T) {
	for code := byte(0); code <= 7; code++ {
		bps, ok := BaudrateBPS(code)
		if !ok {
			t.Fatalf("BaudrateBPS(%d): unknown code", code)
		}
		back, ok := BaudrateCode(bps)
		if !ok || back != code {
			t.Fatalf("BaudrateCode(%d) = %d, %v; want %d", bps, back, ok, code)
		}
	}
	if _, ok := BaudrateBPS(8); ok {
		t.Fatal("code 8 should be unknown")
	}
	if _, ok := BaudrateCode(1234); ok {
		t.Fatal("1234 bps should be unknown")
	}
}
