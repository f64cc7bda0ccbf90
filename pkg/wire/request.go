package wire

import "fmt"

// Request is a Query or Describe request.
type Request struct {
	Opcode  Opcode
	Version Version
}

// AppendBinary implements encoding.BinaryAppender.
func (r *Request) AppendBinary(b []byte) ([]byte, error) {
	if r.Opcode != OpQuery && r.Opcode != OpDescribe {
		return b, fmt.Errorf("%w: %s is not a request", ErrUnexpectedOpcode, r.Opcode)
	}
	return append(b, byte(r.Opcode), byte(r.Version)), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *Request) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RequestSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Version is kept
// as sent; responders clamp it.
func (r *Request) UnmarshalBinary(data []byte) error {
	op, v, err := PeekOpcode(data)
	if err != nil {
		return err
	}
	if op != OpQuery && op != OpDescribe {
		return fmt.Errorf("%w: %s is not a request", ErrUnexpectedOpcode, op)
	}
	r.Opcode = op
	r.Version = v
	return nil
}

// DecodeRequest decodes a Query or Describe request.
func DecodeRequest(b []byte) (Request, error) {
	var r Request
	err := r.UnmarshalBinary(b)
	return r, err
}

// FeatureRequest is a ListFeatures request.
type FeatureRequest struct {
	Version Version
	Offset  uint8
}

// AppendBinary implements encoding.BinaryAppender.
func (r *FeatureRequest) AppendBinary(b []byte) ([]byte, error) {
	return append(b, byte(OpListFeatures), byte(r.Version), r.Offset), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *FeatureRequest) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, FeatureRequestSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *FeatureRequest) UnmarshalBinary(data []byte) error {
	op, v, err := PeekOpcode(data)
	if err != nil {
		return err
	}
	if op != OpListFeatures {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, op, OpListFeatures)
	}
	if len(data) < FeatureRequestSize {
		return fmt.Errorf("%w: feature request needs %d bytes, got %d", ErrTooShort, FeatureRequestSize, len(data))
	}
	r.Version = v
	r.Offset = data[2]
	return nil
}

// DecodeFeatureRequest decodes a ListFeatures request.
func DecodeFeatureRequest(b []byte) (FeatureRequest, error) {
	var r FeatureRequest
	err := r.UnmarshalBinary(b)
	return r, err
}
