package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PagerDuty/godspeed"
)

type StatsDWriter struct {
	gsw       *godspeed.Godspeed
	tagFormat string
}

var statsdUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)

func statsdSafeString(s string) string {
	s = strings.Replace(s, ".", "_", -1)
	s = statsdUnsafe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func NewStatsDWriter(config *StatsDConfig) (*StatsDWriter, error) {
	var port int
	var host string
	var err error

	addr := strings.SplitN(config.Addr, ":", 2)
	if len(addr) == 1 {
		host = addr[0]
		port = 8125
	} else if len(addr) == 2 {
		host = addr[0]
		port, err = strconv.Atoi(addr[1])
		if err != nil {
			return nil, fmt.Errorf("Invalid host:port addr: %v", err)
		}
	}

	if host == "" {
		host = "localhost"
	}

	gs, err := godspeed.New(host, port, false)
	if err != nil {
		return nil, err
	}

	gs.Namespace = "kafka.lookout"

	return &StatsDWriter{
		gsw:       gs,
		tagFormat: config.TagFormat,
	}, nil
}

func (w *StatsDWriter) tagArray(tags Tags) []string {
	if w.tagFormat != "datadog" {
		return nil
	}

	tagArray := []string{}
	for name, value := range tags {
		tagArray = append(tagArray, fmt.Sprintf("%s:%s", name, value))
	}
	return tagArray
}

func (w *StatsDWriter) WriteMirrorEvent(mirror, kind string, tags Tags) {
	if w.tagFormat == "datadog" {
		tags["mirror"] = mirror
		tags["kind"] = kind
		w.gsw.Incr("mirror.events", w.tagArray(tags))
		return
	}

	w.gsw.Incr(fmt.Sprintf("mirror.%s.events.%s", statsdSafeString(mirror), kind), nil)
}

func (w *StatsDWriter) WriteQuery(kind string, duration time.Duration, tags Tags) {
	if w.tagFormat == "datadog" {
		tags["kind"] = kind
		tagArray := w.tagArray(tags)
		w.gsw.Incr("query.requests", tagArray)
		w.gsw.Timing("query.duration.ms", float64(duration.Nanoseconds()/1000/1000), tagArray)
		return
	}

	w.gsw.Incr(fmt.Sprintf("query.%s.requests", kind), nil)
	w.gsw.Timing(fmt.Sprintf("query.%s.duration.ms", kind), float64(duration.Nanoseconds()/1000/1000), nil)
}

func (w *StatsDWriter) WriteOffsetFetch(topic string, partitions, misses int, duration time.Duration, tags Tags) {
	if w.tagFormat == "datadog" {
		tags["topic"] = topic
		tagArray := w.tagArray(tags)
		w.gsw.Gauge("offsets.partitions", float64(partitions), tagArray)
		w.gsw.Gauge("offsets.misses", float64(misses), tagArray)
		w.gsw.Timing("offsets.duration.ms", float64(duration.Nanoseconds()/1000/1000), tagArray)
		return
	}

	safe := statsdSafeString(topic)
	w.gsw.Gauge(fmt.Sprintf("offsets.topic.%s.partitions", safe), float64(partitions), nil)
	w.gsw.Gauge(fmt.Sprintf("offsets.topic.%s.misses", safe), float64(misses), nil)
	w.gsw.Timing(fmt.Sprintf("offsets.topic.%s.duration.ms", safe), float64(duration.Nanoseconds()/1000/1000), nil)
}

func (w *StatsDWriter) WriteParseFailure(kind string, tags Tags) {
	if w.tagFormat == "datadog" {
		tags["kind"] = kind
		w.gsw.Incr("parse.failures", w.tagArray(tags))
		return
	}

	w.gsw.Incr(fmt.Sprintf("parse.%s.failures", kind), nil)
}

func (w *StatsDWriter) WriteObservationSummary(brokerCount, topicCount, groupCount int, duration time.Duration, tags Tags) {
	tagArray := w.tagArray(tags)

	w.gsw.Gauge("observation.brokers", float64(brokerCount), tagArray)
	w.gsw.Gauge("observation.topics", float64(topicCount), tagArray)
	w.gsw.Gauge("observation.consumer_groups", float64(groupCount), tagArray)
	w.gsw.Timing("observation.duration.ms", float64(duration.Nanoseconds()/1000/1000), tagArray)
}

func (w *StatsDWriter) Flush() {
}
