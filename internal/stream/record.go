// Package stream holds the record and partition identity types shared by
// the consumer runtime, the sink, and the pluggable format and partitioner
// components.
package stream

import (
	"fmt"
	"time"
)

// TopicPartition identifies one ordered, independently-assigned subdivision
// of the input stream. It is immutable and comparable, and serves as the
// sole key for writer lookup in the sink.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// Record is a single record delivered from the stream, carrying its stable
// partition identity and offset.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// TopicPartition returns the partition identity the record belongs to.
func (r Record) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}
