package main

import (
	"fmt"
	"time"

	influxdb "github.com/influxdata/influxdb/client/v2"
	log "github.com/sirupsen/logrus"
)

type InfluxDBWriter struct {
	config   *InfluxDBConfig
	client   influxdb.Client
	pointsCh chan *influxdb.Point
	flushCh  chan chan bool
	closeCh  chan bool

	bufferSize    int
	bufferTimeout time.Duration
}

const defaultBufferSize = 100

func NewInfluxDBWriter(config *InfluxDBConfig) (*InfluxDBWriter, error) {
	client, err := newInfluxdbClient(config)
	if err != nil {
		return nil, fmt.Errorf("Unable to create InfluxDB client: %v", err)
	}
	return newInfluxDBWriter(config, client)
}

func newInfluxDBWriter(config *InfluxDBConfig, client influxdb.Client) (*InfluxDBWriter, error) {
	bufferSize := config.BufferSize
	if bufferSize < 0 {
		bufferSize = 0
	}

	flushInterval := config.FlushInterval
	if flushInterval < 1 {
		flushInterval = 1
	}

	w := &InfluxDBWriter{
		config:        config,
		client:        client,
		pointsCh:      make(chan *influxdb.Point),
		flushCh:       make(chan chan bool),
		closeCh:       make(chan bool),
		bufferSize:    bufferSize,
		bufferTimeout: time.Duration(flushInterval) * time.Second,
	}

	go w.capturePoints()
	return w, nil
}

func newInfluxdbClient(config *InfluxDBConfig) (influxdb.Client, error) {
	if config.HTTPConfig.Addr != "" {
		return influxdb.NewHTTPClient(config.HTTPConfig)
	}

	return influxdb.NewUDPClient(config.UDPConfig)
}

func (w *InfluxDBWriter) Write(point *influxdb.Point) {
	w.pointsCh <- point
}

func (w *InfluxDBWriter) WriteMirrorEvent(mirror, kind string, tags Tags) {
	t := tags.clone()
	t["mirror"] = mirror
	t["kind"] = kind

	point, _ := influxdb.NewPoint("kafka_lookout_mirror_event", t,
		map[string]interface{}{"count": 1}, time.Now())
	w.Write(point)
}

func (w *InfluxDBWriter) WriteQuery(kind string, duration time.Duration, tags Tags) {
	t := tags.clone()
	t["kind"] = kind

	point, _ := influxdb.NewPoint("kafka_lookout_query", t,
		map[string]interface{}{
			"count":    1,
			"duration": duration.Nanoseconds(),
		}, time.Now())
	w.Write(point)
}

func (w *InfluxDBWriter) WriteOffsetFetch(topic string, partitions, misses int, duration time.Duration, tags Tags) {
	t := tags.clone()
	t["topic"] = topic

	point, _ := influxdb.NewPoint("kafka_lookout_offsets", t,
		map[string]interface{}{
			"partitions": partitions,
			"misses":     misses,
			"duration":   duration.Nanoseconds(),
		}, time.Now())
	w.Write(point)
}

func (w *InfluxDBWriter) WriteParseFailure(kind string, tags Tags) {
	t := tags.clone()
	t["kind"] = kind

	point, _ := influxdb.NewPoint("kafka_lookout_parse_failure", t,
		map[string]interface{}{"count": 1}, time.Now())
	w.Write(point)
}

func (w *InfluxDBWriter) WriteObservationSummary(brokerCount, topicCount, groupCount int, duration time.Duration, tags Tags) {
	point, _ := influxdb.NewPoint("kafka_lookout_observation", tags.clone(),
		map[string]interface{}{
			"duration":     duration.Nanoseconds(),
			"broker_count": brokerCount,
			"topic_count":  topicCount,
			"group_count":  groupCount,
		}, time.Now())
	w.Write(point)
}

func (w *InfluxDBWriter) Flush() {
	done := make(chan bool)
	w.flushCh <- done
	<-done
}

func (w *InfluxDBWriter) Close() {
	w.Flush()
	w.closeCh <- true
	w.client.Close()
}

func (w *InfluxDBWriter) flushPoints(points []*influxdb.Point) {
	if len(points) == 0 {
		return
	}

	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:        w.config.Database,
		Precision:       w.config.Precision,
		RetentionPolicy: w.config.RetentionPolicy,
	})

	if err != nil {
		log.Errorf("Problem creating batch point! %v", err)
		return
	}

	for _, pt := range points {
		bp.AddPoint(pt)
	}

	w.client.Write(bp)
}

func (w *InfluxDBWriter) capturePoints() {
	points := make([]*influxdb.Point, 0)
	timer := time.NewTimer(w.bufferTimeout)

	for {
		select {

		case p := <-w.pointsCh:
			points = append(points, p)

			if w.bufferSize <= len(points) {
				w.flushPoints(points)
				points = make([]*influxdb.Point, 0)

				timer.Reset(w.bufferTimeout)
			}

		case <-timer.C:
			if len(points) > 0 {
				w.flushPoints(points)
				points = make([]*influxdb.Point, 0)
			}

			timer.Reset(w.bufferTimeout)

		case flushed := <-w.flushCh:
			w.flushPoints(points)
			points = make([]*influxdb.Point, 0)

			flushed <- true
			timer.Reset(w.bufferTimeout)

		case <-w.closeCh:
			timer.Stop()
			return
		}
	}
}
