package domain

import "time"

// Tag identifies a point in the historian's dot-delimited namespace.
type Tag string

func (t Tag) String() string { return string(t) }

// Quality is the opaque status code the historian attaches to a value.
type Quality int64

// TVQ is one timestamp/value/quality record as returned by a live read.
// Timestamp and Quality are optional; Value is absent when nil.
type TVQ struct {
	Value     any
	Timestamp *time.Time
	Quality   *Quality
}

func (r TVQ) HasValue() bool     { return r.Value != nil }
func (r TVQ) HasTimestamp() bool { return r.Timestamp != nil && !r.Timestamp.IsZero() }
func (r TVQ) HasQuality() bool   { return r.Quality != nil }

// Entry is the result for a single tag inside a Snapshot. Err is set when the
// source returned data for the tag that could not be decoded.
type Entry struct {
	Records []TVQ
	Err     error
}

// First returns the first record, if any.
func (e Entry) First() (TVQ, bool) {
	if len(e.Records) == 0 {
		return TVQ{}, false
	}
	return e.Records[0], true
}

// Snapshot maps every tag read in one poll cycle to its records.
type Snapshot map[Tag]Entry

// OutboundMessage is the record published for one tag per cycle.
type OutboundMessage struct {
	Value     any      `json:"value" cbor:"value"`
	Timestamp *string  `json:"timestamp" cbor:"timestamp"`
	Quality   *Quality `json:"quality" cbor:"quality"`
}

// NewOutboundMessage renders r for publishing. The caller checks HasValue first.
func NewOutboundMessage(r TVQ) OutboundMessage {
	msg := OutboundMessage{Value: r.Value, Quality: r.Quality}
	if r.HasTimestamp() {
		ts := r.Timestamp.Format(time.RFC3339Nano)
		msg.Timestamp = &ts
	}
	return msg
}
