package frame

// Parse decodes buf, which the framer claims is exactly one complete
// frame, into a typed Frame. Frame-level failures (Truncated, BadMarker,
// BadChecksum, and BadEnum for a header field) abort the whole parse and
// return a nil Frame. Per-message failures (BadFieldKind, BadLength)
// return the Frame with the messages that parsed successfully before the
// failure; messages after the malformed one are not parsed.
func Parse(buf []byte) (*Frame, error) {
	if len(buf) < 3 {
		return nil, &ParseError{Kind: Truncated, Index: -1}
	}
	if buf[0] != startMarker {
		return nil, &ParseError{Kind: BadMarker, Index: -1}
	}

	declared := int(buf[1])<<8 | int(buf[2])
	declared += 2
	if len(buf) != declared || declared < minFrameLen {
		return nil, &ParseError{Kind: Truncated, Index: -1}
	}
	if buf[declared-1] != endMarker {
		return nil, &ParseError{Kind: BadMarker, Index: -1}
	}

	sum := checksum(buf[3 : declared-2])
	if sum != buf[declared-2] {
		return nil, &ParseError{Kind: BadChecksum, Index: -1}
	}

	f := &Frame{
		SourceClass:   AddressClass(buf[3]),
		SourceChannel: buf[4],
		SourceAddr:    buf[5],
		DestClass:     AddressClass(buf[6]),
		DestChannel:   buf[7],
		DestAddr:      buf[8],
	}
	if !f.SourceClass.valid() || !f.DestClass.valid() {
		return nil, &ParseError{Kind: BadEnum, Index: -1}
	}

	flags := buf[9]
	f.Info = flags&0x80 != 0
	f.Version = (flags >> 5) & 0x3
	f.RetryCount = (flags >> 3) & 0x3

	f.PacketType = PacketType(buf[10] >> 4)
	f.DataType = DataType(buf[10] & 0xf)
	if !f.PacketType.valid() || !f.DataType.valid() {
		return nil, &ParseError{Kind: BadEnum, Index: -1}
	}

	f.PacketNumber = buf[11]
	count := int(buf[12])

	offset := 13
	for i := 0; i < count; i++ {
		if offset+3 > declared-2 {
			return f, &ParseError{Kind: BadLength, Index: i}
		}
		addr := uint16(buf[offset])<<8 | uint16(buf[offset+1])
		kind := FieldKind(buf[offset+2])
		offset += 3

		if !kind.valid() {
			return f, &ParseError{Kind: BadFieldKind, Index: i}
		}

		var size int
		if kind == FieldString {
			if offset+1 > declared-2 {
				return f, &ParseError{Kind: BadLength, Index: i}
			}
			size = int(buf[offset])
			offset++
		} else {
			size = kind.width()
		}

		if offset+size > declared-2 {
			return f, &ParseError{Kind: BadLength, Index: i}
		}
		payload := make([]byte, size)
		copy(payload, buf[offset:offset+size])
		offset += size

		f.Messages = append(f.Messages, Message{Address: addr, FieldKind: kind, Payload: payload})
	}

	if offset != declared-2 {
		return f, &ParseError{Kind: BadLength, Index: -1}
	}

	return f, nil
}

// checksum sums the given range truncated to one byte, per the bus
// trace: the range runs from the source address class byte up to and
// including the last message byte.
func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}
