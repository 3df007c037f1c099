package model

// Batch is an ordered sequence of records of one signal type plus its
// accumulated byte estimate. It is a mutable accumulator owned by exactly one
// pipeline worker at a time; once exported it is discarded.
type Batch struct {
	Signal  Signal
	Records []Record

	// Bytes is the approximate wire size of the records, fixed at decode
	// time. The memory-limit stage and the exporter settle against this
	// figure, so it must not change while the batch is in flight.
	Bytes int64
}

// NewBatch creates a batch for the given signal.
func NewBatch(signal Signal, records []Record, bytes int64) *Batch {
	return &Batch{
		Signal:  signal,
		Records: records,
		Bytes:   bytes,
	}
}

// Len returns the record count.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Append merges another batch of the same signal into this one.
func (b *Batch) Append(other *Batch) {
	if other == nil {
		return
	}
	b.Records = append(b.Records, other.Records...)
	b.Bytes += other.Bytes
}
