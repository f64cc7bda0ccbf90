// Package wire defines the binary packet formats of the device announcement
// protocol.
//
// All packets travel as radio payloads of active-message type 0xDA. Every
// packet starts with a one-byte opcode followed by a one-byte protocol
// version. Integers are big-endian. UUIDs are 16 bytes in RFC 4122 order,
// which is the raw byte order of uuid.UUID.
//
// # Packets
//
//	Opcode  Name            Direction
//	0x00    Announcement    broadcast or response to Query
//	0x01    Description     response to Describe
//	0x02    FeatureList     response to ListFeatures
//	0x10    Query           request, 2 bytes
//	0x11    Describe        request, 2 bytes
//	0x12    ListFeatures    request, 3 bytes (with offset)
//	0xAA    Acknowledgement reserved
//
// # Versions
//
// Version 2 is current. Receivers clamp newer versions down to 2 and never
// reject a packet for being newer. Version 1 announcements and descriptions
// are decoded and upgraded to the version 2 structures, so consumers only
// deal with one shape.
//
// Each packet type implements encoding.BinaryAppender,
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler. MarshalTo writes
// into a pre-allocated radio payload without allocating.
package wire
