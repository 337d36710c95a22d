package frame

// Deterministic defaults used for every frame this gateway originates,
// see spec §4.3.
const (
	defaultVersion = 2
	defaultRetry   = 0
)

func newOutbound(dest AddressClass, dataType DataType, messages []Message) *Frame {
	return &Frame{
		SourceClass: JIGTester,
		DestClass:   dest,
		Version:     defaultVersion,
		RetryCount:  defaultRetry,
		PacketType:  Normal,
		DataType:    dataType,
		PacketNumber: packetNumber,
		Messages:    messages,
	}
}

// NewReadFrame builds a frame requesting the current value of the given
// addresses, used by the polling scheduler (C7).
func NewReadFrame(addrs []uint16) *Frame {
	messages := make([]Message, len(addrs))
	for i, a := range addrs {
		// a read request carries no value; a single zero byte tagged
		// U8 gives every request message a non-empty, fixed-shape
		// payload.
		messages[i] = Message{Address: a, FieldKind: FieldU8, Payload: []byte{0}}
	}
	return newOutbound(BroadcastSetLayer, Read, messages)
}

// NewRequestFrame builds a single-variable forced-refresh frame, issued
// by control ingress (C8) after a write to force a state update.
func NewRequestFrame(addr uint16) *Frame {
	return newOutbound(Indoor, Request, []Message{{Address: addr, FieldKind: FieldU8, Payload: []byte{0}}})
}

// NewWriteFrame builds a frame writing payload to addr with the given
// wire kind.
func NewWriteFrame(addr uint16, kind FieldKind, payload []byte) *Frame {
	return newOutbound(Indoor, Write, []Message{{Address: addr, FieldKind: kind, Payload: payload}})
}
