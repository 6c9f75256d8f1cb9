package mesh

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// -------------------------------------------------------------------------
// Protocol Constants
// -------------------------------------------------------------------------

// MaxPathLen is the maximum number of node identifiers a packet's path
// may hold. The path and (for election packets) the Last-Π history share
// this bound.
const MaxPathLen = 50

// HeaderSize is the fixed portion of the packet header before the
// variable-length path and the optional GPS/election sections:
// type(1) + flags(1) + sender_id(4) + ttl(1) + path_len(2) = 9 bytes.
const HeaderSize = 9

// gpsBlockSize is the size in bytes of the GPS block (three big-endian
// float64 coordinates).
const gpsBlockSize = 24

// electionFixedSize is the size in bytes of the fixed portion of the
// election extension, before the variable-length Last-Π history:
// class_id(2) + pdsf(4) + score(8) + hash(4) + pi_history_len(2) = 20.
const electionFixedSize = 20

// MinDiscoveryPacketSize is the smallest possible serialized discovery
// packet: header only, empty path, no GPS.
const MinDiscoveryPacketSize = HeaderSize

// MinElectionPacketSize documents the wire-format section's stated
// minimum election/renouncement packet size. Summing the fields listed
// in that section (header 9 + election extension 20) yields 29 bytes,
// not 27; this constant preserves the literal field widths given in the
// wire format rather than forcing an undocumented field to reconcile the
// arithmetic (see DESIGN.md, Open Question decisions).
const MinElectionPacketSize = HeaderSize + electionFixedSize

// flag bit positions within the flags byte.
const (
	flagGPSPresent    = 1 << 0
	flagIsClusterhead = 1 << 1
	flagIsRenouncement = 1 << 2
)

// -------------------------------------------------------------------------
// Message Type — Data Model §3
// -------------------------------------------------------------------------

// MessageType discriminates the three packet kinds the protocol carries.
type MessageType uint8

const (
	// Discovery is a plain neighbor-discovery beacon.
	Discovery MessageType = iota

	// Election is a clusterhead candidacy announcement, carrying an
	// election extension.
	Election

	// Renouncement is a candidate's withdrawal after losing a conflict,
	// flooded for three rounds. Also carries an election extension
	// (direct=0, score=0, per §4.F).
	Renouncement
)

// String returns the human-readable name of the message type.
func (t MessageType) String() string {
	switch t {
	case Discovery:
		return "Discovery"
	case Election:
		return "Election"
	case Renouncement:
		return "Renouncement"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// HasElectionExtension reports whether a packet of this type carries an
// election extension on the wire.
func (t MessageType) HasElectionExtension() bool {
	return t == Election || t == Renouncement
}

// -------------------------------------------------------------------------
// ElectionExt — election/renouncement extension
// -------------------------------------------------------------------------

// ElectionExt carries the fields present only on election and
// renouncement packets (Data Model §3).
type ElectionExt struct {
	// ClassID identifies the election class the candidacy belongs to.
	ClassID uint16

	// PDSF is the predicted-devices-so-far estimator accumulated along
	// the path (Glossary: PDSF).
	PDSF uint32

	// LastPi is the per-hop direct-neighbor-count history (Glossary:
	// Last-Π). Its length must equal the packet's path length.
	LastPi []uint32

	// Score is the originating candidate's candidacy score, clamped to
	// [0,1].
	Score float64

	// Hash is the FNV-1a 32-bit hash of the originating sender identifier.
	Hash uint32
}

// -------------------------------------------------------------------------
// Packet — Data Model §3
// -------------------------------------------------------------------------

// Packet is the protocol's wire value type. Packets are never shared:
// every operation that mutates a packet (DecrementTTL, AppendToPath,
// PDSF updates) is expected to operate on the caller's own copy.
type Packet struct {
	// Type discriminates discovery / election / renouncement.
	Type MessageType

	// SenderID is the 32-bit identifier of the node that originated
	// this packet. Forwarding leaves it unchanged; the path records
	// every hop, the originator first.
	SenderID uint32

	// TTL counts down by exactly one at every forwarding hop and never
	// underflows.
	TTL uint8

	// Path is the ordered sequence of node identifiers the packet has
	// traversed. Bounded to MaxPathLen, never contains duplicates.
	Path []uint32

	// HasGPS reports whether GPSX/GPSY/GPSZ are populated. Omitting the
	// GPS block saves 24 bytes on the wire.
	HasGPS bool
	GPSX   float64
	GPSY   float64
	GPSZ   float64

	// IsClusterhead mirrors the flags-byte bit1: set when the sender
	// currently holds (or is reporting) clusterhead state. Independent
	// of Type — see DESIGN.md Open Question decisions for why extension
	// presence is driven by Type rather than this flag.
	IsClusterhead bool

	// Election holds the election/renouncement extension. Non-nil iff
	// Type.HasElectionExtension().
	Election *ElectionExt
}

// Init resets p to a zero-value discovery packet with the given sender
// and TTL, an empty path, and no GPS or election data.
func (p *Packet) Init(senderID uint32, ttl uint8) {
	p.Type = Discovery
	p.SenderID = senderID
	p.TTL = ttl
	p.Path = p.Path[:0]
	p.HasGPS = false
	p.GPSX, p.GPSY, p.GPSZ = 0, 0, 0
	p.IsClusterhead = false
	p.Election = nil
}

// DecrementTTL decrements TTL by one and returns true iff TTL was
// strictly greater than zero before the call. TTL never underflows: a
// zero TTL is left at zero and the call returns false.
func (p *Packet) DecrementTTL() bool {
	if p.TTL == 0 {
		return false
	}
	p.TTL--
	return true
}

// IsInPath reports whether id already appears in the packet's path.
func (p *Packet) IsInPath(id uint32) bool {
	for _, existing := range p.Path {
		if existing == id {
			return true
		}
	}
	return false
}

// AppendToPath appends id to the path. Returns false without modifying
// the path if the path is already at MaxPathLen or id is already present
// (appending would introduce a loop).
func (p *Packet) AppendToPath(id uint32) bool {
	if len(p.Path) >= MaxPathLen {
		return false
	}
	if p.IsInPath(id) {
		return false
	}
	p.Path = append(p.Path, id)
	return true
}

// SetGPS attaches a GPS location to the packet.
func (p *Packet) SetGPS(x, y, z float64) {
	p.HasGPS = true
	p.GPSX, p.GPSY, p.GPSZ = x, y, z
}

// ClearGPS removes any attached GPS location.
func (p *Packet) ClearGPS() {
	p.HasGPS = false
	p.GPSX, p.GPSY, p.GPSZ = 0, 0, 0
}

// -------------------------------------------------------------------------
// PDSF Math — Glossary: PDSF, Last-Π
// -------------------------------------------------------------------------

// CalculatePDSFUpdate computes the new PDSF and the appended Last-Π
// history for a packet being forwarded through a hop that observes
// directCountHere direct neighbors.
//
// PDSF accumulates additively: each new hop's direct count is added to
// the running total, except when that exact count already appears
// earlier in the history, in which case the hop is treated as an
// already-counted duplicate and contributes zero. The returned history
// is always len(prevHistory)+1 long, preserving the invariant that a
// packet's Last-Π length equals its path length.
func CalculatePDSFUpdate(prevPDSF uint32, prevHistory []uint32, directCountHere uint32) (uint32, []uint32) {
	contribution := directCountHere
	for _, v := range prevHistory {
		if v == directCountHere {
			contribution = 0
			break
		}
	}

	newHistory := make([]uint32, len(prevHistory), len(prevHistory)+1)
	copy(newHistory, prevHistory)
	newHistory = append(newHistory, directCountHere)

	return prevPDSF + contribution, newHistory
}

// -------------------------------------------------------------------------
// Score Math
// -------------------------------------------------------------------------

// ScoreWeights holds the weights applied to each normalized connectivity
// metric when computing a candidacy score. Defaults are equal weights of
// 0.25 (see Engine.SetScoreWeights).
type ScoreWeights struct {
	Direct           float64
	ConnectionNoise  float64
	Geographic       float64
	ForwardingRate   float64
}

// DefaultScoreWeights returns the spec's default equal weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Direct: 0.25, ConnectionNoise: 0.25, Geographic: 0.25, ForwardingRate: 0.25}
}

// directCountNormalizer and connectionNoiseNormalizer are the spec's
// fixed normalization divisors (§4.E).
const (
	directCountNormalizer    = 30.0
	connectionNoiseNormalizer = 10.0
)

// CalculateScore computes a composite candidacy score from the four
// connectivity metrics, normalizes direct count by 30 and
// connection:noise ratio by 10 (geographic distribution and forwarding
// rate already lie in [0,1]), applies the supplied weights, and clamps
// the result to [0,1].
//
// The weight names (w_direct, w_cn, w_geo, w_fwd) are taken from
// Engine.SetScoreWeights; this resolves the looser "crowding" parameter
// name used in the component-A prose to the connection:noise ratio that
// the binding weight-setter API actually names (see DESIGN.md Open
// Question decisions).
func CalculateScore(direct uint32, connectionNoise, geo, forwardingRate float64, weights ScoreWeights) float64 {
	normDirect := clamp01(float64(direct) / directCountNormalizer)
	normCN := clamp01(connectionNoise / connectionNoiseNormalizer)
	normGeo := clamp01(geo)
	normFwd := clamp01(forwardingRate)

	score := weights.Direct*normDirect +
		weights.ConnectionNoise*normCN +
		weights.Geographic*normGeo +
		weights.ForwardingRate*normFwd

	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// GenerateHash computes the FNV-1a 32-bit hash of a sender identifier,
// encoded as four big-endian bytes.
func GenerateHash(id uint32) uint32 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], id)

	h := fnv.New32a()
	_, _ = h.Write(buf[:]) // hash.Hash.Write never returns an error.
	return h.Sum32()
}

// -------------------------------------------------------------------------
// Serialize / Deserialize
// -------------------------------------------------------------------------

// wireSize computes the exact serialized size of p.
func (p *Packet) wireSize() int {
	size := HeaderSize + 4*len(p.Path)
	if p.HasGPS {
		size += gpsBlockSize
	}
	if p.Type.HasElectionExtension() && p.Election != nil {
		size += electionFixedSize + 4*len(p.Election.LastPi)
	}
	return size
}

// Serialize encodes p into buf in network byte order, following the
// exact layout in the wire format section: fixed header, path entries,
// conditional GPS block, conditional election extension.
//
// Returns the number of bytes written, or ErrBufferTooSmall if buf is
// undersized.
func (p *Packet) Serialize(buf []byte) (int, error) {
	need := p.wireSize()
	if len(buf) < need {
		return 0, fmt.Errorf("serialize packet: need %d bytes, got %d: %w", need, len(buf), ErrBufferTooSmall)
	}

	var flags uint8
	if p.HasGPS {
		flags |= flagGPSPresent
	}
	if p.IsClusterhead {
		flags |= flagIsClusterhead
	}
	if p.Type == Renouncement {
		flags |= flagIsRenouncement
	}

	buf[0] = uint8(p.Type)
	buf[1] = flags
	binary.BigEndian.PutUint32(buf[2:6], p.SenderID)
	buf[6] = p.TTL
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(p.Path)))

	off := HeaderSize
	for _, id := range p.Path {
		binary.BigEndian.PutUint32(buf[off:off+4], id)
		off += 4
	}

	if p.HasGPS {
		binary.BigEndian.PutUint64(buf[off:off+8], toBits(p.GPSX))
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], toBits(p.GPSY))
		off += 8
		binary.BigEndian.PutUint64(buf[off:off+8], toBits(p.GPSZ))
		off += 8
	}

	if p.Type.HasElectionExtension() && p.Election != nil {
		ext := p.Election
		binary.BigEndian.PutUint16(buf[off:off+2], ext.ClassID)
		off += 2
		binary.BigEndian.PutUint32(buf[off:off+4], ext.PDSF)
		off += 4
		binary.BigEndian.PutUint64(buf[off:off+8], toBits(ext.Score))
		off += 8
		binary.BigEndian.PutUint32(buf[off:off+4], ext.Hash)
		off += 4
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(ext.LastPi)))
		off += 2
		for _, v := range ext.LastPi {
			binary.BigEndian.PutUint32(buf[off:off+4], v)
			off += 4
		}
	}

	return off, nil
}

// Deserialize decodes a packet from buf into p, validating lengths
// against buffer bounds and MaxPathLen. On failure p is left partially
// modified and the caller should discard it; returns ErrInvalid.
func (p *Packet) Deserialize(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("deserialize packet: need %d header bytes, got %d: %w", HeaderSize, len(buf), ErrInvalid)
	}

	typ := MessageType(buf[0])
	flags := buf[1]
	senderID := binary.BigEndian.Uint32(buf[2:6])
	ttl := buf[6]
	pathLen := int(binary.BigEndian.Uint16(buf[7:9]))

	if pathLen > MaxPathLen {
		return fmt.Errorf("deserialize packet: path length %d exceeds max %d: %w", pathLen, MaxPathLen, ErrInvalid)
	}

	off := HeaderSize
	if len(buf) < off+4*pathLen {
		return fmt.Errorf("deserialize packet: buffer too short for path of length %d: %w", pathLen, ErrInvalid)
	}

	path := make([]uint32, pathLen)
	for i := 0; i < pathLen; i++ {
		path[i] = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
	}

	p.Type = typ
	p.SenderID = senderID
	p.TTL = ttl
	p.Path = path
	p.IsClusterhead = flags&flagIsClusterhead != 0
	p.HasGPS = flags&flagGPSPresent != 0
	p.Election = nil

	if p.HasGPS {
		if len(buf) < off+gpsBlockSize {
			return fmt.Errorf("deserialize packet: buffer too short for GPS block: %w", ErrInvalid)
		}
		p.GPSX = fromBits(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
		p.GPSY = fromBits(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
		p.GPSZ = fromBits(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
	} else {
		p.GPSX, p.GPSY, p.GPSZ = 0, 0, 0
	}

	if typ.HasElectionExtension() {
		if len(buf) < off+electionFixedSize {
			return fmt.Errorf("deserialize packet: buffer too short for election extension: %w", ErrInvalid)
		}
		ext := &ElectionExt{}
		ext.ClassID = binary.BigEndian.Uint16(buf[off : off+2])
		off += 2
		ext.PDSF = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		ext.Score = fromBits(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
		ext.Hash = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4

		histLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		if histLen > MaxPathLen {
			return fmt.Errorf("deserialize packet: Last-Π history length %d exceeds max %d: %w", histLen, MaxPathLen, ErrInvalid)
		}
		if len(buf) < off+4*histLen {
			return fmt.Errorf("deserialize packet: buffer too short for Last-Π history of length %d: %w", histLen, ErrInvalid)
		}
		ext.LastPi = make([]uint32, histLen)
		for i := 0; i < histLen; i++ {
			ext.LastPi[i] = binary.BigEndian.Uint32(buf[off : off+4])
			off += 4
		}

		p.Election = ext
	}

	return nil
}

// toBits and fromBits convert between float64 and its big-endian wire
// representation via the IEEE-754 bit pattern, matching the teacher's
// use of encoding/binary directly on the buffer rather than a generic
// codec library.
func toBits(f float64) uint64 {
	return math.Float64bits(f)
}

func fromBits(b uint64) float64 {
	return math.Float64frombits(b)
}
