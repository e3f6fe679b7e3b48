package domain

import "strings"

// FromSourcePath converts a historian tag path to an MQTT topic.
func FromSourcePath(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

// ToSourcePath converts an MQTT topic back to a historian tag path. Paths that
// contain a literal '/' or '.' inside a segment do not round-trip.
func ToSourcePath(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// Topic returns the topic a tag is published under.
func (t Tag) Topic() string { return FromSourcePath(string(t)) }
