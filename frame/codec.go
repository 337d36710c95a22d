package frame

import (
	"math"
	"strconv"
	"strings"

	"github.com/ehsgw/gateway/expr"
	"github.com/ehsgw/gateway/repo"
)

// Value is the semantic result of decoding one message's payload. Only
// one of Num or Str is meaningful, selected by Numeric; Raw always holds
// the underlying integer so that callers (the quality monitor, pending
// write matcher) can compare against it regardless of conversion.
type Value struct {
	Numeric  bool
	Num      float64
	Str      string
	Raw      int64
	EnumMiss bool // true when entry.Kind == ENUM but Raw had no label
}

// DecodeValue converts a message's raw payload into a semantic Value
// using entry's kind, optional forward arithmetic and optional
// enumeration, per spec §4.3. The caller is responsible for looking up
// entry by msg.Address beforehand and treating a missing entry as
// UnknownAddress.
func DecodeValue(msg Message, entry *repo.Entry) (Value, error) {
	if entry.Kind == repo.STRING {
		return Value{Str: decodeString(msg.Payload)}, nil
	}

	raw := decodeInt(msg.Payload, entry.Kind == repo.U8 || (entry.Kind == repo.ENUM && entry.UnderlyingWidth() == 1))

	if entry.Kind == repo.ENUM {
		label, ok := entry.Label(int(raw))
		if !ok {
			return Value{Raw: raw, EnumMiss: true}, nil
		}
		return Value{Str: label, Raw: raw}, nil
	}

	result := float64(raw)
	if entry.Forward != nil {
		v, err := entry.Forward.Eval(map[string]float64{"packed_value": float64(raw)})
		if err != nil {
			return Value{Raw: raw}, err
		}
		result = v
	}
	return Value{Numeric: true, Num: round(result, 3), Raw: raw}, nil
}

// EncodeValue converts a write command's textual value into a wire
// payload of the width entry's kind implies, per spec §4.3. Degraded
// reports overflow: the payload is still valid (zeroed) and should still
// be sent, but the operation counter must reflect the degradation.
func EncodeValue(text string, entry *repo.Entry) (payload []byte, degraded bool, err error) {
	if entry.Kind == repo.STRING {
		return make([]byte, 4), false, nil
	}

	width := entry.Kind.Width()
	unsigned := entry.Kind == repo.U8
	if entry.Kind == repo.ENUM {
		width = entry.UnderlyingWidth()
		unsigned = width == 1
	}

	var num float64
	matched := false
	if entry.EnumMap != nil {
		if id, ok := entry.ID(text); ok {
			num = float64(id)
			matched = true
		}
	}
	if !matched {
		parsed, perr := strconv.ParseFloat(text, 64)
		if perr != nil {
			return nil, false, &expr.BadExpression{Expr: text, Kind: expr.BadToken, Detail: text}
		}
		num = parsed
		if entry.Reverse != nil {
			num, err = entry.Reverse.Eval(map[string]float64{"value": parsed})
			if err != nil {
				return nil, false, err
			}
		}
	}

	raw := int64(math.Round(num))
	degraded = !fits(raw, width, unsigned)
	if degraded {
		raw = 0
	}
	return encodeInt(raw, width), degraded, nil
}

func fits(v int64, width int, unsigned bool) bool {
	if unsigned {
		return v >= 0 && v < 1<<(8*width)
	}
	lo := int64(-1) << (8*width - 1)
	hi := -lo - 1
	return v >= lo && v <= hi
}

func decodeInt(payload []byte, unsigned bool) int64 {
	var v int64
	for _, b := range payload {
		v = v<<8 | int64(b)
	}
	if unsigned || len(payload) == 0 {
		return v
	}
	bits := uint(len(payload)) * 8
	sign := int64(1) << (bits - 1)
	if v&sign != 0 {
		v -= int64(1) << bits
	}
	return v
}

func encodeInt(v int64, width int) []byte {
	out := make([]byte, width)
	u := uint64(v)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(u)
		u >>= 8
	}
	return out
}

func decodeString(payload []byte) string {
	printable := true
	for _, b := range payload {
		if !(b >= 0x20 && b <= 0x7E) && b != 0x00 && b != 0xFF {
			printable = false
			break
		}
	}
	if !printable {
		out := make([]byte, 0, len(payload)*3)
		for _, b := range payload {
			out = append(out, []byte(strconv.Itoa(int(b)))...)
		}
		return string(out)
	}

	out := make([]byte, len(payload))
	for i, b := range payload {
		if b == 0x00 || b == 0xFF {
			out[i] = ' '
		} else {
			out[i] = b
		}
	}
	return strings.TrimSpace(string(out))
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
