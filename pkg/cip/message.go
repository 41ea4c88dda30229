package cip

// MessageRouterRequest is an unconnected (or Class-3 connected) CIP request:
// service code, an EPATH addressing a class/instance/attribute, and a
// payload. Both the wire-level Path bytes and, where decoded, the
// structured RequestPath are kept — the Message Router only needs the
// structured form, but ForwardOpen/ForwardClose embed a MessageRouterRequest
// as their own service dispatch target (spec 4.5, 4.6 step 7).
type MessageRouterRequest struct {
	Service     USINT
	RequestPath Path
	Decoded     RequestPath
	RequestData []byte
}

// Encode serializes the request: service, path size in words, path bytes,
// then the payload, with no added envelope (the CPF/encapsulation layers
// frame this separately).
func (r *MessageRouterRequest) Encode() []byte {
	c := NewWriteCursor(make([]byte, 0, 2+len(r.RequestPath)+len(r.RequestData)))
	c.WriteU8(r.Service)
	c.WriteU8(USINT(r.RequestPath.LenWords()))
	c.WriteBytes(r.RequestPath.Bytes())
	c.WriteBytes(r.RequestData)
	return c.Bytes()
}

// DecodeMessageRouterRequest parses service byte + EPATH + payload out of
// an unconnected request body (spec 4.5 step 1). It is the single place
// this parsing happens; earlier teacher code duplicated it at each call
// site.
func DecodeMessageRouterRequest(data []byte) (*MessageRouterRequest, error) {
	c := NewCursor(data)
	if err := c.RequireRemaining(2); err != nil {
		return nil, Err(StatusPathSegmentError)
	}
	service := c.ReadU8()
	pathWords := int(c.ReadU8())
	if err := c.RequireRemaining(pathWords * 2); err != nil {
		return nil, Err(StatusNotEnoughData)
	}
	pathStart := c.Pos()
	decoded, err := DecodePaddedEPath(c, pathWords)
	if err != nil {
		return nil, err
	}
	pathBytes := data[pathStart:c.Pos()]

	return &MessageRouterRequest{
		Service:     service,
		RequestPath: Path(pathBytes),
		Decoded:     decoded,
		RequestData: append([]byte(nil), c.Rest()...),
	}, nil
}

// MessageRouterResponse is the reply envelope every service handler writes
// into (spec 4.4/4.5 step 5): reply service (0x80|request service), general
// status, extended status words, and payload.
type MessageRouterResponse struct {
	Service       USINT // Reply Service (Request Service | 0x80)
	Reserved      USINT
	GeneralStatus USINT
	ExtStatusSize USINT
	ExtStatus     []UINT
	ResponseData  []byte
}

// ReplyService computes the 0x80|service reply code (spec 3, service
// descriptor).
func ReplyService(requestService USINT) USINT {
	return requestService | 0x80
}

// EncodeMessageRouterResponse serializes a response, returning
// ErrReplyBufferOverflow (and no bytes) if it would overflow maxLen — the router's single fixed-size reply buffer
// (spec 4.5, MESSAGE_DATA_REPLY_BUFFER). Overflow here is a programming
// error (spec 4.5): it means a handler produced more data than the buffer
// contract allows.
func EncodeMessageRouterResponse(r *MessageRouterResponse, maxLen int) ([]byte, error) {
	size := 4 + len(r.ExtStatus)*2 + len(r.ResponseData)
	if size > maxLen {
		return nil, ErrReplyBufferOverflow
	}
	c := NewWriteCursor(make([]byte, 0, size))
	c.WriteU8(r.Service)
	c.WriteU8(r.Reserved)
	c.WriteU8(r.GeneralStatus)
	c.WriteU8(USINT(len(r.ExtStatus)))
	for _, w := range r.ExtStatus {
		c.WriteU16(w)
	}
	c.WriteBytes(r.ResponseData)
	return c.Bytes(), nil
}

// DecodeMessageRouterResponse decodes a byte slice into a
// MessageRouterResponse (used by tests and by the CPF/unconnected-send
// reply path to verify round-trips).
func DecodeMessageRouterResponse(data []byte) (*MessageRouterResponse, error) {
	c := NewCursor(data)
	if err := c.RequireRemaining(4); err != nil {
		return nil, err
	}
	r := &MessageRouterResponse{
		Service:       c.ReadU8(),
		Reserved:      c.ReadU8(),
		GeneralStatus: c.ReadU8(),
		ExtStatusSize: c.ReadU8(),
	}
	if err := c.RequireRemaining(int(r.ExtStatusSize) * 2); err != nil {
		return nil, err
	}
	if r.ExtStatusSize > 0 {
		r.ExtStatus = make([]UINT, r.ExtStatusSize)
		for i := range r.ExtStatus {
			r.ExtStatus[i] = c.ReadU16()
		}
	}
	r.ResponseData = append([]byte(nil), c.Rest()...)
	return r, nil
}

// IsSuccess checks if the response indicates success
func (r *MessageRouterResponse) IsSuccess() bool {
	return r.GeneralStatus == StatusSuccess
}

// Error returns a structured error if the response failed
func (r *MessageRouterResponse) Error() error {
	if r.IsSuccess() {
		return nil
	}
	return Error{
		Status:    r.GeneralStatus,
		ExtStatus: r.ExtStatus,
	}
}

// ErrReplyBufferOverflow signals a handler wrote more than
// MESSAGE_DATA_REPLY_BUFFER bytes; the single-threaded core treats this as
// a programming error rather than a wire condition (spec 4.5, 9).
var ErrReplyBufferOverflow = Err(StatusReplyDataTooLarge)
