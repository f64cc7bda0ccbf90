package radio

// Message is a fixed-capacity radio packet. Messages are pre-allocated by
// their owner and reused; nothing in this package allocates payload space.
type Message struct {
	amid        AMID
	source      Addr
	destination Addr
	length      int
	maxLength   int
	reset       bool // maxLength is set
	payload     [MaxPayloadLength]byte
}

// Reset clears all header fields and limits the payload to maxLength bytes.
// Layers call it from InitMessage. Lengths outside [0, MaxPayloadLength]
// are clamped.
func (m *Message) Reset(maxLength int) {
	maxLength = min(max(maxLength, 0), MaxPayloadLength)
	m.amid = 0
	m.source = 0
	m.destination = 0
	m.length = 0
	m.maxLength = maxLength
	m.reset = true
}

// Payload returns n bytes of payload space, or nil when the message cannot
// hold n bytes.
func (m *Message) Payload(n int) []byte {
	if n < 0 || n > m.PayloadMaxLength() {
		return nil
	}
	return m.payload[:n]
}

// PayloadMaxLength returns the payload capacity set by the last Reset. A
// message that was never reset has the full capacity.
func (m *Message) PayloadMaxLength() int {
	if !m.reset {
		return MaxPayloadLength
	}
	return m.maxLength
}

// Data returns the payload up to the current payload length.
func (m *Message) Data() []byte {
	return m.payload[:m.length]
}

// SetPayloadLength sets the number of valid payload bytes.
func (m *Message) SetPayloadLength(n int) error {
	if n < 0 || n > m.PayloadMaxLength() {
		return ErrInvalidLength
	}
	m.length = n
	return nil
}

// PayloadLength returns the number of valid payload bytes.
func (m *Message) PayloadLength() int {
	return m.length
}

// SetType sets the active-message type.
func (m *Message) SetType(amid AMID) {
	m.amid = amid
}

// Type returns the active-message type.
func (m *Message) Type() AMID {
	return m.amid
}

// SetDestination sets the destination address.
func (m *Message) SetDestination(dst Addr) {
	m.destination = dst
}

// Destination returns the destination address.
func (m *Message) Destination() Addr {
	return m.destination
}

// SetSource sets the source address. Layers fill it in on receive and send.
func (m *Message) SetSource(src Addr) {
	m.source = src
}

// Source returns the source address.
func (m *Message) Source() Addr {
	return m.source
}
