package protocol

/*
SYNC WIRE FORMAT

Every frame is one tag byte followed by an opaque payload:

  0x00 SyncRequest  payload empty, "send me your full state"
  0x01 SyncUpdate   payload = update bytes produced by the document library

The codec never looks inside update bytes. Anything it does not understand
(empty frame, unknown tag, update without payload) decodes to an ignorable
message so older peers keep working when newer ones add tags.
*/

// Tag is the first byte of every frame.
type Tag byte

const (
	TagSyncRequest Tag = 0x00
	TagSyncUpdate  Tag = 0x01
)

// Kind identifies a decoded message.
type Kind int

const (
	KindIgnore Kind = iota
	KindSyncRequest
	KindSyncUpdate
)

func (k Kind) String() string {
	switch k {
	case KindSyncRequest:
		return "sync_request"
	case KindSyncUpdate:
		return "sync_update"
	default:
		return "ignore"
	}
}

// Message is a decoded frame. Payload is only set for KindSyncUpdate.
type Message struct {
	Kind    Kind
	Payload []byte
}

// SyncRequest returns the frame asking peers for their full state.
func SyncRequest() []byte {
	return []byte{byte(TagSyncRequest)}
}

// SyncUpdate prepends the update tag to payload. The payload is copied, not
// transformed.
func SyncUpdate(payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(TagSyncUpdate)
	copy(frame[1:], payload)
	return frame
}

// Decode parses one frame. It never fails: malformed or unknown frames come
// back as KindIgnore. The returned payload aliases frame.
func Decode(frame []byte) Message {
	if len(frame) == 0 {
		return Message{Kind: KindIgnore}
	}

	switch Tag(frame[0]) {
	case TagSyncRequest:
		return Message{Kind: KindSyncRequest}
	case TagSyncUpdate:
		payload := frame[1:]
		if len(payload) == 0 {
			return Message{Kind: KindIgnore}
		}
		return Message{Kind: KindSyncUpdate, Payload: payload}
	default:
		return Message{Kind: KindIgnore}
	}
}
