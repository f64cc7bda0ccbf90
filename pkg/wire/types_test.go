package wire

import (
	"errors"
	"testing"
)

func TestClampVersion(t *testing.T) {
	tests := []struct {
		in, want Version
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{255, 2},
	}
	for _, tt := range tests {
		if got := ClampVersion(tt.in); got != tt.want {
			t.Errorf("ClampVersion(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPeekOpcode(t *testing.T) {
	op, v, err := PeekOpcode([]byte{0x12, 0x07, 0x03})
	if err != nil {
		t.Fatalf("PeekOpcode: %v", err)
	}
	if op != OpListFeatures || v != 7 {
		t.Errorf("PeekOpcode = %s v%d, want LIST_FEATURES v7", op, v)
	}
	if _, _, err := PeekOpcode([]byte{0x10}); !errors.Is(err, ErrTooShort) {
		t.Errorf("short packet error = %v, want ErrTooShort", err)
	}
}

func TestRequests(t *testing.T) {
	q := Request{Opcode: OpQuery, Version: 1}
	data, err := q.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != RequestSize || data[0] != 0x10 || data[1] != 1 {
		t.Errorf("query = % X", data)
	}
	got, err := DecodeRequest(data)
	if err != nil || got != q {
		t.Errorf("DecodeRequest = %+v, %v", got, err)
	}

	if _, err := (&Request{Opcode: OpAnnouncement}).MarshalBinary(); !errors.Is(err, ErrUnexpectedOpcode) {
		t.Errorf("non-request opcode error = %v", err)
	}

	fr := FeatureRequest{Version: 2, Offset: 6}
	data, _ = fr.MarshalBinary()
	if len(data) != FeatureRequestSize || data[0] != 0x12 || data[2] != 6 {
		t.Errorf("list features = % X", data)
	}
	gotFR, err := DecodeFeatureRequest(data)
	if err != nil || gotFR != fr {
		t.Errorf("DecodeFeatureRequest = %+v, %v", gotFR, err)
	}
	if _, err := DecodeFeatureRequest(data[:2]); !errors.Is(err, ErrTooShort) {
		t.Errorf("short feature request error = %v, want ErrTooShort", err)
	}
}

func TestEnumStrings(t *testing.T) {
	if OpDescribe.String() != "DESCRIBE" {
		t.Errorf("OpDescribe = %s", OpDescribe)
	}
	if Opcode(0x55).String() != "UNKNOWN(0x55)" {
		t.Errorf("unknown opcode = %s", Opcode(0x55))
	}
	if PositionCentral.String() != "CENTRAL" {
		t.Errorf("PositionCentral = %s", PositionCentral)
	}
	if RadioTechBLE802154.String() != "BLE+802.15.4" {
		t.Errorf("RadioTechBLE802154 = %s", RadioTechBLE802154)
	}
}

func TestParseHelpers(t *testing.T) {
	e, err := ParseEUI64("88:77:66:55:44:33:22:11")
	if err != nil || e != testGUID {
		t.Errorf("ParseEUI64 = %s, %v", e, err)
	}
	if e.String() != "8877665544332211" {
		t.Errorf("EUI64.String() = %s", e)
	}
	if _, err := ParseEUI64("1234"); err == nil {
		t.Error("ParseEUI64 accepted a short value")
	}

	v, err := ParseSemVer("1.10.3")
	if err != nil || v != (SemVer{1, 10, 3}) {
		t.Errorf("ParseSemVer = %v, %v", v, err)
	}

	p, err := ParsePositionType("g")
	if err != nil || p != PositionGPS {
		t.Errorf("ParsePositionType(g) = %v, %v", p, err)
	}
	if _, err := ParsePositionType("X"); err == nil {
		t.Error("ParsePositionType accepted X")
	}

	op, err := ParseOpcode("list_features")
	if err != nil || op != OpListFeatures {
		t.Errorf("ParseOpcode(list_features) = %v, %v", op, err)
	}
	if _, err := ParseOpcode("read"); err == nil {
		t.Error("ParseOpcode accepted read")
	}
}
