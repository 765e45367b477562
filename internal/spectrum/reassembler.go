package spectrum

// Reassembler repairs chunk boundaries across successive serial reads. The
// transport hands over whatever bytes had arrived when a read terminated, so
// a read routinely ends in the middle of an encoded value. The trailing
// partial chunk of each read is held back as a pending fragment until the
// next read shows whether it was already complete or needs its remainder
// stitched on.
//
// Buffers must be presented in the exact order they were read; out-of-order
// delivery corrupts the pending fragment irrecoverably.
type Reassembler struct {
	pending []byte
}

// Pending reports whether an unresolved fragment is being held.
func (r *Reassembler) Pending() bool {
	return len(r.pending) > 0
}

// Reset discards any held fragment.
func (r *Reassembler) Reset() {
	r.pending = nil
}

// Next splits the raw buffer on the separator byte and applies the fragment
// protocol on both sides. A held fragment is resolved against the first byte
// of the new raw buffer: a separator or end-of-stream byte there means the
// fragment was already a whole chunk and is prepended as such, anything else
// means the first split chunk is the fragment's continuation. The decision
// has to be made against the raw buffer because splitting strips the
// separator that would otherwise settle it.
//
// Symmetrically, when the raw buffer's last byte is neither a separator nor
// the end-of-stream byte, the final split chunk is withheld as the new
// pending fragment and replaced by an empty chunk so it is not interpreted
// prematurely.
//
// An empty buffer (a read timeout with no data) is a no-op that preserves
// the held fragment.
func (r *Reassembler) Next(raw []byte) [][]byte {
	if len(raw) == 0 {
		return nil
	}

	chunks := splitChunks(raw)

	if len(r.pending) > 0 {
		switch raw[0] {
		case sepByte, eosByte:
			// the previous read's tail was complete on its own
			chunks = append([][]byte{r.pending}, chunks...)
		default:
			// the first chunk is the other half of the held fragment
			chunks[0] = append(r.pending, chunks[0]...)
		}
		r.pending = nil
	}

	if last := raw[len(raw)-1]; last != sepByte && last != eosByte {
		// the read almost certainly stopped mid-value: hold the tail
		tail := chunks[len(chunks)-1]
		r.pending = append([]byte(nil), tail...)
		chunks[len(chunks)-1] = nil
	}

	return chunks
}

// Flush returns the held fragment as a final chunk and clears it. Called at
// end of stream, when the framing guarantees nothing further is coming to
// complete it.
func (r *Reassembler) Flush() []byte {
	p := r.pending
	r.pending = nil
	return p
}
