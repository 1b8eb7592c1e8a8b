package main

import (
	"time"
)

type Tags map[string]string

func (t Tags) clone() Tags {
	r := make(Tags, len(t))
	for k, v := range t {
		r[k] = v
	}
	return r
}

// MetricsWriter is one sink for observation metrics.
type MetricsWriter interface {
	WriteMirrorEvent(mirror, kind string, tags Tags)
	WriteQuery(kind string, duration time.Duration, tags Tags)
	WriteOffsetFetch(topic string, partitions, misses int, duration time.Duration, tags Tags)
	WriteParseFailure(kind string, tags Tags)
	WriteObservationSummary(brokerCount, topicCount, groupCount int, duration time.Duration, tags Tags)
	Flush()
}

// Recorder fans observation metrics out to every configured writer.
// A nil Recorder records nothing, so instrumented paths never need to
// check.
type Recorder struct {
	writers []MetricsWriter
	tags    Tags
}

func NewRecorder(cluster string) *Recorder {
	return &Recorder{
		writers: make([]MetricsWriter, 0),
		tags:    Tags{"cluster": cluster},
	}
}

func (r *Recorder) AddWriter(writer MetricsWriter) {
	r.writers = append(r.writers, writer)
}

func (r *Recorder) MirrorEvent(mirror, kind string) {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.WriteMirrorEvent(mirror, kind, r.tags.clone())
	}
}

func (r *Recorder) Query(kind string, duration time.Duration) {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.WriteQuery(kind, duration, r.tags.clone())
	}
}

func (r *Recorder) OffsetFetch(topic string, partitions, misses int, duration time.Duration) {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.WriteOffsetFetch(topic, partitions, misses, duration, r.tags.clone())
	}
}

func (r *Recorder) ParseFailure(kind string) {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.WriteParseFailure(kind, r.tags.clone())
	}
}

func (r *Recorder) ObservationSummary(brokerCount, topicCount, groupCount int, duration time.Duration) {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.WriteObservationSummary(brokerCount, topicCount, groupCount, duration, r.tags.clone())
	}
}

func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	for _, w := range r.writers {
		w.Flush()
	}
}
