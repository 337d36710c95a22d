package frame

// Serialize renders f back into wire bytes: length prefix, header,
// messages, checksum and end marker, in that order.
func Serialize(f *Frame) []byte {
	var body []byte // everything from SourceClass through the last message byte
	body = append(body,
		byte(f.SourceClass), f.SourceChannel, f.SourceAddr,
		byte(f.DestClass), f.DestChannel, f.DestAddr,
	)

	var flags byte
	if f.Info {
		flags |= 0x80
	}
	flags |= (f.Version & 0x3) << 5
	flags |= (f.RetryCount & 0x3) << 3
	body = append(body, flags)

	body = append(body, byte(f.PacketType)<<4|byte(f.DataType)&0xf)
	body = append(body, f.PacketNumber)
	body = append(body, byte(len(f.Messages)))

	for _, m := range f.Messages {
		body = append(body, byte(m.Address>>8), byte(m.Address))
		body = append(body, byte(m.FieldKind))
		if m.FieldKind == FieldString {
			body = append(body, byte(len(m.Payload)))
		}
		body = append(body, m.Payload...)
	}

	sum := checksum(body)

	// The length field holds (total frame size - 2); the total frame
	// size is 1 (start marker) + 2 (length field) + len(body) + 1
	// (checksum) + 1 (end marker).
	n := len(body) + 3

	out := make([]byte, 0, 3+len(body)+2)
	out = append(out, startMarker, byte(n>>8), byte(n))
	out = append(out, body...)
	out = append(out, sum, endMarker)
	return out
}
