package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const defaultNamespace string = "kafka_lookout"

type PrometheusExporter struct {
	namespace    string
	duration     prometheus.Gauge
	observations prometheus.Counter
	brokerCount  prometheus.Gauge
	topicCount   prometheus.Gauge
	groupCount   prometheus.Gauge

	mirrorEvents  *prometheus.CounterVec
	queries       *prometheus.CounterVec
	queryDuration *prometheus.GaugeVec
	parseFailures *prometheus.CounterVec

	offsetPartitions *prometheus.GaugeVec
	offsetMisses     *prometheus.GaugeVec
	offsetDuration   *prometheus.GaugeVec

	mutex           sync.Mutex
	hasObservations bool
}

func NewPrometheusExporter(config *PrometheusConfig) (*PrometheusExporter, error) {
	namespace := defaultNamespace
	if config.Namespace != "" {
		namespace = config.Namespace
	}

	exporter := &PrometheusExporter{
		namespace: namespace,
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observation",
			Name:      "duration_seconds",
			Help:      "Duration of the last observation summary in seconds.",
		}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Total number of times an observation summary was made.",
		}),
		brokerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observation",
			Name:      "broker_count",
			Help:      "Current number of observed brokers.",
		}),
		topicCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observation",
			Name:      "topic_count",
			Help:      "Current number of observed topics.",
		}),
		groupCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observation",
			Name:      "consumer_group_count",
			Help:      "Current number of observed consumer groups.",
		}),
		mirrorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_events_total",
			Help:      "Total number of ZooKeeper mirror events observed.",
		}, []string{"mirror", "kind"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries served.",
		}, []string{"kind"}),
		queryDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of the last query of a kind in seconds.",
		}, []string{"kind"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of malformed records dropped.",
		}, []string{"kind"}),
		offsetPartitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offsets",
			Name:      "partition_count",
			Help:      "Number of partitions in the last offset fetch of a topic.",
		}, []string{"topic"}),
		offsetMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offsets",
			Name:      "miss_count",
			Help:      "Number of partitions without an offset in the last fetch of a topic.",
		}, []string{"topic"}),
		offsetDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offsets",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the last offset fetch of a topic in seconds.",
		}, []string{"topic"}),
	}

	prometheus.Register(exporter)
	if config.WebAddr != "" {
		go exporter.serve(config.WebAddr, config.WebPath)
	}

	return exporter, nil
}

func (pe *PrometheusExporter) serve(addr, path string) {
	http.Handle(path, prometheus.Handler())
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
			<head><title>Kafka Lookout Exporter</title></head>
			<body>
			<h1>Kafka Lookout Exporter</h1>
			<p><a href="` + path + `">Metrics</a></p>
			</body>
			</html>`))
	})

	log.Info("Starting Prometheus handler ", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func (pe *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	log.Debugln("Describing metrics")

	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	ch <- pe.observations.Desc()
	pe.mirrorEvents.Describe(ch)
	pe.queries.Describe(ch)
	pe.queryDuration.Describe(ch)
	pe.parseFailures.Describe(ch)
	pe.offsetPartitions.Describe(ch)
	pe.offsetMisses.Describe(ch)
	pe.offsetDuration.Describe(ch)
	if pe.hasObservations {
		ch <- pe.duration.Desc()
		ch <- pe.brokerCount.Desc()
		ch <- pe.topicCount.Desc()
		ch <- pe.groupCount.Desc()
	}
}

func (pe *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	log.Debugln("Prometheus is collecting metrics")

	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	ch <- pe.observations
	pe.mirrorEvents.Collect(ch)
	pe.queries.Collect(ch)
	pe.queryDuration.Collect(ch)
	pe.parseFailures.Collect(ch)
	pe.offsetPartitions.Collect(ch)
	pe.offsetMisses.Collect(ch)
	pe.offsetDuration.Collect(ch)
	if pe.hasObservations {
		ch <- pe.duration
		ch <- pe.brokerCount
		ch <- pe.topicCount
		ch <- pe.groupCount
	}
}

func (pe *PrometheusExporter) WriteMirrorEvent(mirror, kind string, tags Tags) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	pe.mirrorEvents.With(prometheus.Labels{
		"mirror": mirror,
		"kind":   kind,
	}).Inc()
}

func (pe *PrometheusExporter) WriteQuery(kind string, duration time.Duration, tags Tags) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	pe.queries.With(prometheus.Labels{"kind": kind}).Inc()
	pe.queryDuration.With(prometheus.Labels{"kind": kind}).Set(duration.Seconds())
}

func (pe *PrometheusExporter) WriteOffsetFetch(topic string, partitions, misses int, duration time.Duration, tags Tags) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	pe.offsetPartitions.With(prometheus.Labels{"topic": topic}).Set(float64(partitions))
	pe.offsetMisses.With(prometheus.Labels{"topic": topic}).Set(float64(misses))
	pe.offsetDuration.With(prometheus.Labels{"topic": topic}).Set(duration.Seconds())
}

func (pe *PrometheusExporter) WriteParseFailure(kind string, tags Tags) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	pe.parseFailures.With(prometheus.Labels{"kind": kind}).Inc()
}

func (pe *PrometheusExporter) WriteObservationSummary(brokerCount, topicCount, groupCount int, duration time.Duration, tags Tags) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()

	pe.observations.Inc()
	pe.duration.Set(duration.Seconds())
	pe.brokerCount.Set(float64(brokerCount))
	pe.topicCount.Set(float64(topicCount))
	pe.groupCount.Set(float64(groupCount))

	pe.hasObservations = true
}

func (pe *PrometheusExporter) Flush() {
}
