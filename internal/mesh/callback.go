package mesh

// LogLevel classifies a message passed to a node's LogFunc.
type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// String returns the human-readable name of the level.
func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "unknown"
	}
}

// SendFunc is the host's broadcast transmit capability. The core never
// opens a radio itself; every outbound packet is handed to this
// function as a Packet value, and encoding it for the air (for example
// with Packet.Serialize) is left to the host. userContext is
// the opaque value supplied in Config and passed through unchanged,
// letting the host recover its own state without the core needing to
// know its shape.
//
// Invoked synchronously from within Tick. It must not block
// or call back into the engine — the core has no reentrancy guard.
type SendFunc func(pkt Packet, userContext any)

// LogFunc is the host's logging capability. The core never writes to
// stdout/stderr or holds a logger handle of its own; every diagnostic
// message is handed to this function along with the opaque
// userContext, so the host can route it through whatever structured
// logger it already owns.
//
// Invoked synchronously, same reentrancy rule as SendFunc.
type LogFunc func(level LogLevel, msg string, userContext any)

// RoleChange describes a node state transition. It mirrors the
// notification shape a push-based consumer would want without requiring
// the core to depend on any specific logging or metrics backend. The
// Engine itself does not construct RoleChange values; it reports role
// changes as LogFunc messages and counts them in Stats().RoleChanges.
type RoleChange struct {
	Old NodeState
	New NodeState
}
