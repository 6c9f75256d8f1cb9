package mesh

import "container/heap"

// -------------------------------------------------------------------------
// Message queue
// -------------------------------------------------------------------------

const (
	// MaxQueueSize bounds the number of packets awaiting forwarding.
	MaxQueueSize = 100

	// MaxDedupCacheSize bounds the number of fingerprints the dedup
	// cache retains before evicting the oldest.
	MaxDedupCacheSize = 200
)

// EnqueueResult reports the outcome of a MessageQueue.Enqueue call.
type EnqueueResult uint8

const (
	// Accepted means the packet was admitted to the queue.
	Accepted EnqueueResult = iota
	// DuplicateResult means a fingerprint match was found in the dedup
	// cache; the packet was dropped.
	DuplicateResult
	// LoopResult means the receiving node's ID was already present in
	// the packet's path; the packet was dropped.
	LoopResult
	// FullResult means the queue was at capacity; the packet was
	// dropped.
	FullResult
)

// String implements fmt.Stringer.
func (r EnqueueResult) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case DuplicateResult:
		return "Duplicate"
	case LoopResult:
		return "Loop"
	case FullResult:
		return "Full"
	default:
		return "Unknown"
	}
}

// dedupFingerprint identifies a packet for dedup purposes by sender,
// first forwarding hop, and TTL at time of receipt.
type dedupFingerprint struct {
	SenderID      uint32
	FirstPathElem uint32
	TTL           uint8
}

func fingerprintOf(p Packet) dedupFingerprint {
	var first uint32
	if len(p.Path) > 0 {
		first = p.Path[0]
	}
	return dedupFingerprint{
		SenderID:      p.SenderID,
		FirstPathElem: first,
		TTL:           p.TTL,
	}
}

// QueueEntry is a packet awaiting forwarding, along with the receiver
// context it was enqueued under.
type QueueEntry struct {
	Packet     Packet
	ReceiverID uint32
	Priority   uint8
	EnqueuedAt uint64

	seq uint64
}

// entryHeap is a min-heap on Priority (== 255-TTL), i.e. a max-heap on
// TTL: the highest-TTL entry dequeues first. Ties break by insertion
// order (lower seq first) to give FIFO behavior among equal-priority
// entries.
type entryHeap []QueueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(QueueEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// QueueStats accumulates lifetime counters for a MessageQueue. It is
// not reset by Clear.
type QueueStats struct {
	Enqueued   uint64
	Dequeued   uint64
	Duplicates uint64
	Loops      uint64
	Overflows  uint64
}

// MessageQueue is the bounded, priority-ordered forwarding queue each
// node maintains for packets it has received and may relay. The
// priority value is 255 − TTL and lower values dequeue first, so the
// packet with the most TTL remaining leaves first, with FIFO order
// among equal-priority entries.
type MessageQueue struct {
	heap  entryHeap
	nextSeq uint64

	dedup      map[dedupFingerprint]uint64
	dedupOrder []dedupFingerprint

	stats QueueStats
}

// Init resets the queue to empty, ready for use. The zero value is not
// otherwise usable since the dedup map must be allocated.
func (q *MessageQueue) Init() {
	q.heap = q.heap[:0]
	heap.Init(&q.heap)
	q.nextSeq = 0
	q.dedup = make(map[dedupFingerprint]uint64, MaxDedupCacheSize)
	q.dedupOrder = q.dedupOrder[:0]
	q.stats = QueueStats{}
}

// Enqueue admits packet for forwarding on behalf of receiverID at
// nowMs, in priority order by how much TTL remains. It checks, in
// order, whether receiverID already appears in the packet's path (a
// forwarding loop), whether an identical fingerprint was already seen
// (a duplicate), and whether the queue is at capacity.
func (q *MessageQueue) Enqueue(p Packet, receiverID uint32, nowMs uint64) EnqueueResult {
	if q.dedup == nil {
		q.Init()
	}

	if p.IsInPath(receiverID) {
		q.stats.Loops++
		return LoopResult
	}

	fp := fingerprintOf(p)
	if _, seen := q.dedup[fp]; seen {
		q.stats.Duplicates++
		return DuplicateResult
	}

	if q.heap.Len() >= MaxQueueSize {
		q.stats.Overflows++
		return FullResult
	}

	q.recordFingerprint(fp, nowMs)

	entry := QueueEntry{
		Packet:     p,
		ReceiverID: receiverID,
		Priority:   255 - p.TTL,
		EnqueuedAt: nowMs,
		seq:        q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.heap, entry)
	q.stats.Enqueued++
	return Accepted
}

func (q *MessageQueue) recordFingerprint(fp dedupFingerprint, nowMs uint64) {
	q.dedup[fp] = nowMs
	q.dedupOrder = append(q.dedupOrder, fp)
	for len(q.dedupOrder) > MaxDedupCacheSize {
		oldest := q.dedupOrder[0]
		q.dedupOrder = q.dedupOrder[1:]
		delete(q.dedup, oldest)
	}
}

// Dequeue removes and returns the highest-priority entry. ok is false
// if the queue is empty.
func (q *MessageQueue) Dequeue() (entry QueueEntry, ok bool) {
	if q.heap.Len() == 0 {
		return QueueEntry{}, false
	}
	q.stats.Dequeued++
	return heap.Pop(&q.heap).(QueueEntry), true
}

// Peek returns the highest-priority entry without removing it. ok is
// false if the queue is empty.
func (q *MessageQueue) Peek() (entry QueueEntry, ok bool) {
	if q.heap.Len() == 0 {
		return QueueEntry{}, false
	}
	return q.heap[0], true
}

// Len returns the number of entries currently queued.
func (q *MessageQueue) Len() int {
	return q.heap.Len()
}

// Cleanup evicts dedup fingerprints last seen more than maxAgeMs before
// nowMs. This bounds the dedup cache's effective window independently
// of its capacity-based eviction.
func (q *MessageQueue) Cleanup(nowMs uint64, maxAgeMs uint64) {
	if q.dedup == nil {
		return
	}
	kept := q.dedupOrder[:0]
	for _, fp := range q.dedupOrder {
		seenAt := q.dedup[fp]
		if nowMs-seenAt > maxAgeMs {
			delete(q.dedup, fp)
			continue
		}
		kept = append(kept, fp)
	}
	q.dedupOrder = kept
}

// Clear empties the queue and dedup cache. Lifetime stats counters are
// left untouched.
func (q *MessageQueue) Clear() {
	q.heap = q.heap[:0]
	for k := range q.dedup {
		delete(q.dedup, k)
	}
	q.dedupOrder = q.dedupOrder[:0]
}

// Stats returns a copy of the queue's lifetime counters.
func (q *MessageQueue) Stats() QueueStats {
	return q.stats
}
