package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	influxdb "github.com/influxdata/influxdb/client/v2"
	log "github.com/sirupsen/logrus"
)

type LookoutConfig struct {
	LogLevel   string
	LogFormat  string
	Observer   ObserverConfig
	InfluxDB   InfluxDBConfig
	StatsD     StatsDConfig
	Prometheus PrometheusConfig
}

const LogFormatText = "text"
const LogFormatJSON = "json"

type ObserverConfig struct {
	ZookeeperConnect string
	Chroot           string
	SessionTimeout   time.Duration
	ClusterName      string
	DeleteSupported  bool

	FilterInactive    bool
	ActiveMinChildren int

	TopicPattern string
	GroupPattern string
	topicFilter  glob.Glob
	groupFilter  glob.Glob

	OffsetTimeout   time.Duration
	SummaryInterval time.Duration
}

func (c *ObserverConfig) ZookeeperList() []string {
	return strings.Split(c.ZookeeperConnect, ",")
}

type InfluxDBConfig struct {
	Database        string
	RetentionPolicy string
	Precision       string
	HTTPConfig      influxdb.HTTPConfig
	UDPConfig       influxdb.UDPConfig
	BufferSize      int
	FlushInterval   int
}

type StatsDConfig struct {
	Addr      string
	TagFormat string
}

type PrometheusConfig struct {
	Namespace string
	WebAddr   string
	WebPath   string
}

func (config *LookoutConfig) Parse() {
	flag.StringVar(&config.Observer.ZookeeperConnect,
		"zookeeper.connect", "", "The hostname:port of one or more ZooKeeper hosts")
	flag.StringVar(&config.Observer.Chroot,
		"zookeeper.chroot", "", "The chroot path of the Kafka cluster within ZooKeeper")
	flag.DurationVar(&config.Observer.SessionTimeout,
		"zookeeper.session-timeout", 30*time.Second, "The ZooKeeper session timeout")

	flag.StringVar(&config.Observer.ClusterName,
		"cluster.name", "default", "A name for the observed cluster, used in logs and metrics")
	flag.BoolVar(&config.Observer.DeleteSupported,
		"cluster.delete-supported", false, "Observe pending topic deletes; requires Kafka 0.8.2+")

	flag.BoolVar(&config.Observer.FilterInactive,
		"consumers.filter-inactive", false, "Exclude consumer groups that don't look active")
	flag.IntVar(&config.Observer.ActiveMinChildren,
		"consumers.active-min-children", 3, "How many znode children an active consumer group has")

	flag.StringVar(&config.Observer.TopicPattern,
		"observe.topic", "", "A glob pattern of topics to observe; other topics will be ignored")
	flag.StringVar(&config.Observer.GroupPattern,
		"observe.group", "", "A glob pattern of consumer groups to observe; other groups will be ignored")

	flag.DurationVar(&config.Observer.OffsetTimeout,
		"offset.timeout", 10*time.Second, "The socket timeout for partition offset requests")
	flag.DurationVar(&config.Observer.SummaryInterval,
		"summary.interval", time.Minute, "How often to log an observation summary")

	flag.StringVar(&config.InfluxDB.UDPConfig.Addr,
		"influxdb.udp.addr", "", "The hostname:port of an InfluxDB UDP endpoint")
	flag.StringVar(&config.InfluxDB.HTTPConfig.Addr,
		"influxdb.http.url", "", "The http://hostname:port of an InfluxDB HTTP endpoint")
	flag.IntVar(&config.InfluxDB.BufferSize,
		"influxdb.buffer-size", 1000, "The maximum number of points to buffer before flushing to InfluxDB")
	flag.IntVar(&config.InfluxDB.FlushInterval,
		"influxdb.flush-interval", 60, "The number of seconds to wait before flushing to InfluxDB")
	flag.StringVar(&config.InfluxDB.Database,
		"influxdb.database", "", "The target InfluxDB database name")
	flag.StringVar(&config.InfluxDB.RetentionPolicy,
		"influxdb.retention-policy", "", "The target InfluxDB database retention policy name")
	flag.StringVar(&config.InfluxDB.Precision,
		"influxdb.precision", "us", "The precision of points written to InfluxDB: \"s\", \"ms\", \"us\"")

	flag.StringVar(&config.StatsD.Addr,
		"statsd.addr", "", "The hostname:port of a StatsD UDP endpoint")
	flag.StringVar(&config.StatsD.TagFormat,
		"statsd.tag-format", "", "Use \"datadog\" to write DataDog-style metric tags")

	flag.StringVar(&config.Prometheus.Namespace,
		"prometheus.namespace", "", "The namespace prefix of Prometheus metric names")
	flag.StringVar(&config.Prometheus.WebAddr,
		"prometheus.web.addr", "", "The hostname:port to serve Prometheus metrics from")
	flag.StringVar(&config.Prometheus.WebPath,
		"prometheus.web.path", "/metrics", "The path to serve Prometheus metrics from")

	flag.StringVar(&config.LogLevel, "log.level", log.InfoLevel.String(), "Logging level: debug, info, warning, error")
	flag.StringVar(&config.LogFormat, "log.format", LogFormatText, "Logging format: text, json")

	showVersion := flag.Bool("version", false, "Print the current version")

	flag.Parse()
	if *showVersion {
		PrintVersion(os.Stdout)
		os.Exit(0)
	}

	SetLogFormat(config.LogFormat)
	SetLogLevel(config.LogLevel)

	if config.Observer.ZookeeperConnect == "" {
		log.Fatal("Oops! A -zookeeper.connect address is required")
	}

	config.Observer.topicFilter = compileFilter(config.Observer.TopicPattern)
	config.Observer.groupFilter = compileFilter(config.Observer.GroupPattern)
}

func compileFilter(pattern string) glob.Glob {
	if pattern == "" {
		return nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		log.Fatalf("Oops! Bad glob pattern %q: %v", pattern, err)
	}
	return g
}

func (config *LookoutConfig) CanWriteToInfluxDB() bool {
	return config.InfluxDB.UDPConfig.Addr != "" || config.InfluxDB.HTTPConfig.Addr != ""
}

func (config *LookoutConfig) CanWriteToStatsD() bool {
	return config.StatsD.Addr != ""
}

func (config *LookoutConfig) CanWriteToPrometheus() bool {
	return config.Prometheus.WebAddr != ""
}

func SetLogFormat(f string) {
	if f == LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{})
	}
}

func SetLogLevel(l string) {
	level, err := log.ParseLevel(l)
	if err != nil {
		log.Fatalf("Oops! %v", err)
	}

	log.SetLevel(level)
}
