package capture

import (
	"errors"
	"sort"
)

// ErrLatePacket is returned for a sequence number that was already released
// or given up on.
var ErrLatePacket = errors.New("late or duplicate packet")

const defaultMaxGap = 20

// ReorderBuffer restores sequence order for audio packets arriving over an
// unordered transport. Packets are released as soon as they are contiguous;
// a gap wider than maxGap is abandoned and its missing packets counted lost.
// Sequence comparisons tolerate uint32 wraparound.
//
// A ReorderBuffer is not safe for concurrent use.
type ReorderBuffer struct {
	maxGap uint32

	started     bool
	expectedSeq uint32
	pending     map[uint32][]byte

	totalPackets uint64
	lostPackets  uint64
	latePackets  uint64
}

// ReorderStats represents reorder buffer statistics for monitoring
type ReorderStats struct {
	TotalPackets uint64  `json:"total_packets"`
	LostPackets  uint64  `json:"lost_packets"`
	LatePackets  uint64  `json:"late_packets"`
	PendingSeqs  int     `json:"pending_sequences"`
	LossRate     float64 `json:"loss_rate"`
}

// NewReorderBuffer creates a buffer that waits for up to maxGap missing packets.
func NewReorderBuffer(maxGap int) *ReorderBuffer {
	if maxGap <= 0 {
		maxGap = defaultMaxGap
	}
	return &ReorderBuffer{
		maxGap:  uint32(maxGap),
		pending: make(map[uint32][]byte),
	}
}

// Push adds one packet and returns the payloads that became releasable, in
// sequence order. The first packet after a Reset defines the starting sequence.
func (b *ReorderBuffer) Push(seq uint32, data []byte) ([][]byte, error) {
	if !b.started {
		b.started = true
		b.expectedSeq = seq
	}

	ahead := int32(seq - b.expectedSeq)
	if ahead < 0 {
		b.latePackets++
		return nil, ErrLatePacket
	}
	if _, dup := b.pending[seq]; dup {
		b.latePackets++
		return nil, ErrLatePacket
	}

	b.totalPackets++
	b.pending[seq] = data

	var released [][]byte
	if uint32(ahead) > b.maxGap {
		// Give up on the gap and release whatever was buffered inside it
		for b.expectedSeq != seq {
			if payload, ok := b.pending[b.expectedSeq]; ok {
				released = append(released, payload)
				delete(b.pending, b.expectedSeq)
			} else {
				b.lostPackets++
			}
			b.expectedSeq++
		}
	}

	return b.drain(released), nil
}

// drain releases consecutive buffered packets starting at expectedSeq
func (b *ReorderBuffer) drain(released [][]byte) [][]byte {
	for {
		payload, ok := b.pending[b.expectedSeq]
		if !ok {
			return released
		}
		released = append(released, payload)
		delete(b.pending, b.expectedSeq)
		b.expectedSeq++
	}
}

// Flush releases every buffered packet in sequence order, counting the holes
// between them as lost. Used when capture stops and no more packets will be
// waited for.
func (b *ReorderBuffer) Flush() [][]byte {
	if len(b.pending) == 0 {
		return nil
	}

	base := b.expectedSeq
	offsets := make([]uint32, 0, len(b.pending))
	for seq := range b.pending {
		offsets = append(offsets, seq-base)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	released := make([][]byte, 0, len(offsets))
	for _, off := range offsets {
		seq := base + off
		b.lostPackets += uint64(seq - b.expectedSeq)
		released = append(released, b.pending[seq])
		delete(b.pending, seq)
		b.expectedSeq = seq + 1
	}
	return released
}

// Reset forgets the sequence position, e.g. after a new format announcement.
// Counters are kept.
func (b *ReorderBuffer) Reset() {
	b.started = false
	b.expectedSeq = 0
	b.pending = make(map[uint32][]byte)
}

// GetStats returns current buffer statistics
func (b *ReorderBuffer) GetStats() ReorderStats {
	lossRate := float64(0)
	if seen := b.totalPackets + b.lostPackets; seen > 0 {
		lossRate = float64(b.lostPackets) / float64(seen)
	}
	return ReorderStats{
		TotalPackets: b.totalPackets,
		LostPackets:  b.lostPackets,
		LatePackets:  b.latePackets,
		PendingSeqs:  len(b.pending),
		LossRate:     lossRate,
	}
}
