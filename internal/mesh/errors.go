package mesh

import "errors"

// Sentinel errors for the error kinds enumerated in the core's error
// handling design. Internal rejections (forwarding drops, dedup hits,
// TTL expiries) are never errors — they are counted in Stats and
// surfaced via Engine.Stats instead.
var (
	// ErrBufferTooSmall indicates the caller's buffer is undersized for
	// Packet.Serialize.
	ErrBufferTooSmall = errors.New("mesh: buffer too small")

	// ErrInvalid indicates a packet failed to deserialize: the declared
	// path length exceeds buffer bounds or MaxPathLen, or a length field
	// is otherwise inconsistent with the wire data.
	ErrInvalid = errors.New("mesh: invalid packet")

	// ErrFull indicates a bounded table (queue or neighbor table) is at
	// capacity.
	ErrFull = errors.New("mesh: capacity full")

	// ErrDuplicate indicates the message queue rejected a packet already
	// present in the dedup cache.
	ErrDuplicate = errors.New("mesh: duplicate packet")

	// ErrLoop indicates the message queue rejected a packet whose path
	// already contains the receiving node's identifier.
	ErrLoop = errors.New("mesh: forwarding loop detected")

	// ErrInvalidTransition indicates a requested node-state transition has
	// no entry in the state machine table.
	ErrInvalidTransition = errors.New("mesh: invalid state transition")

	// ErrNotInitialized indicates a public operation was called on an
	// Engine before Init.
	ErrNotInitialized = errors.New("mesh: engine not initialized")
)
