package frame

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ehsgw/gateway/repo"
)

func mustRepo(t *testing.T, doc string) *repo.Repository {
	t.Helper()
	r, err := repo.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDecodeSimpleTemperature(t *testing.T) {
	r := mustRepo(t, `
variables:
  - name: NASA_OUTDOOR_TW1_TEMP
    address: "0x4203"
    kind: I16
    unit: "°C"
    forward: "packed_value / 10"
`)
	entry, _ := r.ByName("NASA_OUTDOOR_TW1_TEMP")

	msg := Message{Address: 0x4203, FieldKind: FieldI16, Payload: []byte{0x00, 0xEB}}
	v, err := DecodeValue(msg, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Numeric || v.Num != 23.5 {
		t.Errorf("got %+v, want Num=23.5", v)
	}
}

func TestEnumDecodeUnknownValue(t *testing.T) {
	r := mustRepo(t, `
variables:
  - name: ENUM_X
    address: "0x4000"
    kind: ENUM
    width: 1
    enum:
      0: "OFF"
      1: "ON"
`)
	entry, _ := r.ByName("ENUM_X")
	msg := Message{Address: 0x4000, FieldKind: FieldU8, Payload: []byte{2}}
	v, err := DecodeValue(msg, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !v.EnumMiss || v.Raw != 2 {
		t.Errorf("got %+v, want EnumMiss with Raw=2", v)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	r := mustRepo(t, `
variables:
  - name: VAR_IN_FSV_1031
    address: "0x4247"
    kind: I16
    writable: true
    reverse: "value * 10"
`)
	entry, _ := r.ByName("VAR_IN_FSV_1031")
	payload, degraded, err := EncodeValue("55", entry)
	if err != nil || degraded {
		t.Fatalf("EncodeValue: %v degraded=%v", err, degraded)
	}
	want := []byte{0x02, 0x26} // 550 big-endian
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}

func TestCodecRoundTripNumericKinds(t *testing.T) {
	r := mustRepo(t, `
variables:
  - name: A_U8
    address: "0x1"
    kind: U8
  - name: A_I16
    address: "0x2"
    kind: I16
  - name: A_I32
    address: "0x3"
    kind: I32
`)
	cases := []struct {
		name string
		kind FieldKind
		raw  int64
	}{
		{"A_U8", FieldU8, 200},
		{"A_I16", FieldI16, -1234},
		{"A_I32", FieldI32, -70000},
	}
	for _, c := range cases {
		entry, _ := r.ByName(c.name)
		payload := encodeInt(c.raw, entry.Kind.Width())
		msg := Message{Address: entry.Address, FieldKind: c.kind, Payload: payload}
		v, err := DecodeValue(msg, entry)
		if err != nil {
			t.Fatal(err)
		}
		if int64(v.Num) != c.raw {
			t.Errorf("%s: got %v, want %v", c.name, v.Num, c.raw)
		}
	}
}

func TestParseBadEndMarker(t *testing.T) {
	buf := Serialize(NewReadFrame([]uint16{0x1}))
	buf[len(buf)-1] = 0x33
	_, err := Parse(buf)
	if err == nil {
		t.Fatal("expected error")
	}
	pe := err.(*ParseError)
	if pe.Kind != BadMarker {
		t.Errorf("got %s, want BadMarker", pe.Kind)
	}
}

func TestParseTruncated(t *testing.T) {
	buf := Serialize(NewReadFrame([]uint16{0x1}))
	_, err := Parse(buf[:len(buf)-3])
	if err == nil {
		t.Fatal("expected error")
	}
	pe := err.(*ParseError)
	if pe.Kind != Truncated {
		t.Errorf("got %s, want Truncated", pe.Kind)
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	f := NewWriteFrame(0x4247, FieldI16, []byte{0x02, 0x26})
	buf := Serialize(f)
	got, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.DataType != Write || got.DestClass != Indoor || len(got.Messages) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.Messages[0].Address != 0x4247 || !bytes.Equal(got.Messages[0].Payload, []byte{0x02, 0x26}) {
		t.Errorf("got message %+v", got.Messages[0])
	}
}
