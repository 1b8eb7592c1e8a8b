package main

import (
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/samuel/go-zookeeper/zk"
	log "github.com/sirupsen/logrus"
)

// TopicDescriptions pairs a batch of descriptions with the topics
// clock value at response time, so callers can ask for deltas later.
type TopicDescriptions struct {
	Descriptions     []TopicDescription
	LastUpdateMillis int64
}

type ConsumerDescriptions struct {
	Descriptions     []ConsumerDescription
	LastUpdateMillis int64
}

// Query messages. Each carries its own reply channel; replies are
// always well-typed, missing data comes back as nil or empty.
type queryTopics struct{ reply chan TopicList }
type queryTopicDescription struct {
	topic string
	reply chan *TopicDescription
}
type queryTopicDescriptions struct {
	topics []string
	reply  chan TopicDescriptions
}
type queryAllTopicDescriptions struct {
	since int64
	reply chan *TopicDescriptions
}
type queryTopicConfig struct {
	topic string
	reply chan *NodeValue
}
type queryConsumers struct{ reply chan ConsumerList }
type queryConsumerDescription struct {
	group string
	reply chan *ConsumerDescription
}
type queryConsumerDescriptions struct {
	groups []string
	reply  chan ConsumerDescriptions
}
type queryAllConsumerDescriptions struct {
	since int64
	reply chan *ConsumerDescriptions
}
type queryConsumedTopicState struct {
	group string
	topic string
	reply chan *ConsumedTopicState
}
type queryBrokers struct{ reply chan []BrokerIdentity }
type queryElection struct{ reply chan *PreferredReplicaElection }
type queryReassignment struct{ reply chan *ReassignPartitions }
type queryTopicsLastUpdate struct{ reply chan int64 }

// Command messages, produced by routing admin mirror events.
type cmdUpdateElection struct {
	at      int64
	payload []byte
}
type cmdEndElection struct{ at int64 }
type cmdUpdateReassignment struct {
	at      int64
	payload []byte
}
type cmdEndReassignment struct{ at int64 }

// Observer mirrors one Kafka cluster's state out of ZooKeeper and
// serves read queries over the materialised view. All mirror events,
// tracker commands, and queries run on a single goroutine, so tracker
// transitions are totally ordered with the queries that read them.
type Observer struct {
	config   *ObserverConfig
	recorder *Recorder
	paths    clusterPaths

	conn     *zk.Conn
	zkEvents <-chan zk.Event
	mirrors  []*pathMirror

	topicsClock    freshnessClock
	consumersClock freshnessClock
	election       electionTracker
	reassignment   reassignmentTracker
	engine         *queryEngine

	requests chan interface{}
	events   chan mirrorEvent
	stopCh   chan struct{}
	doneCh   chan bool
	termCh   chan bool
}

func NewObserver(config *ObserverConfig, recorder *Recorder) *Observer {
	return &Observer{
		config:   config,
		recorder: recorder,
		paths:    clusterPaths{chroot: config.Chroot},
	}
}

// Connect dials ZooKeeper and loads the initial mirrors, retrying
// until it succeeds. The returned channel signals readiness.
func (o *Observer) Connect() chan bool {
	readyCh := make(chan bool)
	retryTimeout := 10 * time.Second

	go func() {
		for {
			err := o.start()
			if err == nil {
				break
			}

			log.Debugf("Problem starting observer: %v", err)
			log.Infof("Couldn't observe the cluster! Trying again in %v", retryTimeout)
			time.Sleep(retryTimeout)
		}

		log.Infof("Observing the Kafka cluster!")
		o.doneCh = make(chan bool)
		o.termCh = make(chan bool)
		readyCh <- true
	}()

	return readyCh
}

func (o *Observer) start() error {
	started := time.Now()

	conn, zkEvents, err := zk.Connect(o.config.ZookeeperList(), o.config.SessionTimeout)
	if err != nil {
		return err
	}

	o.conn = conn
	o.zkEvents = zkEvents
	o.requests = make(chan interface{})
	o.events = make(chan mirrorEvent, 512)
	o.stopCh = make(chan struct{})

	go o.serve()

	mirrors := []*pathMirror{
		newSubtreeMirror("topics", conn, o.paths.topics(), o.events, &o.topicsClock),
		newSubtreeMirror("consumers", conn, o.paths.consumers(), o.events, &o.consumersClock),
		newChildrenMirror("broker-ids", conn, o.paths.brokerIds(), o.events, nil),
		newChildrenMirror("topic-configs", conn, o.paths.topicConfigs(), o.events, nil),
		newChildrenMirror("admin", conn, o.paths.admin(), o.events, nil),
	}
	if o.config.DeleteSupported {
		mirrors = append(mirrors,
			newChildrenMirror("delete-topics", conn, o.paths.deleteTopics(), o.events, &o.topicsClock))
	}

	for i, mirror := range mirrors {
		if err := mirror.Start(); err != nil {
			for _, running := range mirrors[:i] {
				running.Close()
			}
			close(o.stopCh)
			conn.Close()
			return err
		}
	}
	o.mirrors = mirrors

	o.engine = &queryEngine{
		paths:             o.paths,
		topics:            mirrors[0].store,
		consumers:         mirrors[1].store,
		brokerIds:         mirrors[2].store,
		topicConfigs:      mirrors[3].store,
		fetcher:           newBrokerOffsetFetcher(o.config.OffsetTimeout, o.recorder),
		recorder:          o.recorder,
		deleteSupported:   o.config.DeleteSupported,
		filterInactive:    o.config.FilterInactive,
		activeMinChildren: o.config.ActiveMinChildren,
		topicFilter:       o.config.topicFilter,
		groupFilter:       o.config.groupFilter,
	}
	if o.config.DeleteSupported {
		o.engine.deleteTopics = mirrors[len(mirrors)-1].store
	}

	go o.watchSession()

	log.WithFields(log.Fields{
		"zookeeper": o.config.ZookeeperConnect,
		"chroot":    o.config.Chroot,
	}).Infof("Cluster view loaded in %v", time.Since(started))

	return nil
}

// serve is the observer's single-writer loop: one mirror event or one
// request at a time.
func (o *Observer) serve() {
	for {
		select {
		case <-o.stopCh:
			return

		case event := <-o.events:
			o.handleMirrorEvent(event)

		case message := <-o.requests:
			o.handleMessage(message)
		}
	}
}

func (o *Observer) handleMirrorEvent(event mirrorEvent) {
	o.recorder.MirrorEvent(event.Mirror, event.Kind.String())

	log.WithFields(log.Fields{
		"mirror": event.Mirror,
		"path":   event.Path,
	}).Debugf("Observed %s", event.Kind)

	if event.Mirror == "admin" && event.Kind != mirrorInitialized {
		if command := routeAdminEvent(event); command != nil {
			o.handleMessage(command)
		}
	}
}

func (o *Observer) handleMessage(message interface{}) {
	started := time.Now()
	kind := ""

	switch m := message.(type) {
	case queryTopics:
		kind = "topics"
		m.reply <- o.engine.topicList()

	case queryTopicDescription:
		kind = "topic_description"
		m.reply <- o.engine.topicDescription(m.topic)

	case queryTopicDescriptions:
		kind = "topic_descriptions"
		m.reply <- TopicDescriptions{
			Descriptions:     o.engine.topicDescriptions(m.topics),
			LastUpdateMillis: o.topicsClock.lastUpdate(),
		}

	case queryAllTopicDescriptions:
		kind = "all_topic_descriptions"
		if o.topicsClock.lastUpdate() > m.since {
			m.reply <- &TopicDescriptions{
				Descriptions:     o.engine.topicDescriptions(o.engine.topicNames()),
				LastUpdateMillis: o.topicsClock.lastUpdate(),
			}
		} else {
			m.reply <- nil
		}

	case queryTopicConfig:
		kind = "topic_config"
		m.reply <- o.engine.topicConfig(m.topic)

	case queryConsumers:
		kind = "consumers"
		m.reply <- o.engine.consumerList()

	case queryConsumerDescription:
		kind = "consumer_description"
		m.reply <- o.engine.consumerDescription(m.group)

	case queryConsumerDescriptions:
		kind = "consumer_descriptions"
		m.reply <- ConsumerDescriptions{
			Descriptions:     o.engine.consumerDescriptions(m.groups),
			LastUpdateMillis: o.consumersClock.lastUpdate(),
		}

	case queryAllConsumerDescriptions:
		kind = "all_consumer_descriptions"
		if o.consumersClock.lastUpdate() > m.since {
			m.reply <- &ConsumerDescriptions{
				Descriptions:     o.engine.consumerDescriptions(o.engine.consumerList().Consumers),
				LastUpdateMillis: o.consumersClock.lastUpdate(),
			}
		} else {
			m.reply <- nil
		}

	case queryConsumedTopicState:
		kind = "consumed_topic_state"
		m.reply <- o.engine.consumedTopicState(m.group, m.topic)

	case queryBrokers:
		kind = "brokers"
		m.reply <- o.engine.brokers()

	case queryElection:
		kind = "preferred_replica_election"
		m.reply <- o.election.snapshot()

	case queryReassignment:
		kind = "reassign_partitions"
		m.reply <- o.reassignment.snapshot()

	case queryTopicsLastUpdate:
		kind = "topics_last_update"
		m.reply <- o.topicsClock.lastUpdate()

	case cmdUpdateElection:
		o.election.update(m.at, m.payload)

	case cmdEndElection:
		o.election.end(m.at)

	case cmdUpdateReassignment:
		o.reassignment.update(m.at, m.payload)

	case cmdEndReassignment:
		o.reassignment.end(m.at)

	default:
		log.Warnf("Ignoring unknown message kind %T", message)
	}

	if kind != "" {
		o.recorder.Query(kind, time.Since(started))
	}
}

// watchSession follows the shared connection's session events and
// resyncs every mirror when a session is re-established, since
// watches set under the old session are gone.
func (o *Observer) watchSession() {
	hadSession := false

	for event := range o.zkEvents {
		if event.Type != zk.EventSession {
			continue
		}

		switch event.State {
		case zk.StateHasSession:
			if hadSession {
				log.Warn("ZooKeeper session re-established, resyncing mirrors")
				for _, mirror := range o.mirrors {
					mirror.Resync()
				}
			}
			hadSession = true

		case zk.StateExpired:
			log.Warn("ZooKeeper session expired")
		}
	}
}

// Run logs a periodic observation summary off the observer's own
// query surface until Close is called.
func (o *Observer) Run() {
	for {
		select {
		case <-time.After(o.config.SummaryInterval):
			started := time.Now()
			brokers := o.Brokers()
			topics := o.Topics()
			consumers := o.Consumers()
			duration := time.Since(started)

			o.recorder.ObservationSummary(len(brokers), len(topics.Topics), len(consumers.Consumers), duration)

			log.WithFields(log.Fields{
				"brokers":     len(brokers),
				"topics":      len(topics.Topics),
				"groups":      len(consumers.Consumers),
				"duration_ms": duration.Nanoseconds() / 1000 / 1000,
			}).Infof("Observation complete in %v", strings.ToLower(units.HumanDuration(duration)))

		case <-o.doneCh:
			o.shutdown()
			log.Info("Stopped observing the cluster")
			o.termCh <- true
			return
		}
	}
}

func (o *Observer) shutdown() {
	for _, mirror := range o.mirrors {
		mirror.Close()
	}
	close(o.stopCh)
	o.conn.Close()
}

func (o *Observer) Close() {
	o.doneCh <- true
	<-o.termCh
}

// Topics lists the topics registered in the cluster, along with any
// pending delete markers.
func (o *Observer) Topics() TopicList {
	m := queryTopics{reply: make(chan TopicList, 1)}
	o.requests <- m
	return <-m.reply
}

// TopicDescription describes one topic, or nil if it does not exist.
func (o *Observer) TopicDescription(topic string) *TopicDescription {
	m := queryTopicDescription{topic: topic, reply: make(chan *TopicDescription, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) TopicDescriptions(topics []string) TopicDescriptions {
	m := queryTopicDescriptions{topics: topics, reply: make(chan TopicDescriptions, 1)}
	o.requests <- m
	return <-m.reply
}

// AllTopicDescriptions returns every topic description, or nil when
// nothing has changed since the given clock value.
func (o *Observer) AllTopicDescriptions(sinceMillis int64) *TopicDescriptions {
	m := queryAllTopicDescriptions{since: sinceMillis, reply: make(chan *TopicDescriptions, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) TopicConfig(topic string) *NodeValue {
	m := queryTopicConfig{topic: topic, reply: make(chan *NodeValue, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) Consumers() ConsumerList {
	m := queryConsumers{reply: make(chan ConsumerList, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) ConsumerDescription(group string) *ConsumerDescription {
	m := queryConsumerDescription{group: group, reply: make(chan *ConsumerDescription, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) ConsumerDescriptions(groups []string) ConsumerDescriptions {
	m := queryConsumerDescriptions{groups: groups, reply: make(chan ConsumerDescriptions, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) AllConsumerDescriptions(sinceMillis int64) *ConsumerDescriptions {
	m := queryAllConsumerDescriptions{since: sinceMillis, reply: make(chan *ConsumerDescriptions, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) ConsumedTopicState(group, topic string) *ConsumedTopicState {
	m := queryConsumedTopicState{group: group, topic: topic, reply: make(chan *ConsumedTopicState, 1)}
	o.requests <- m
	return <-m.reply
}

// Brokers lists the live broker registrations, ordered by id.
func (o *Observer) Brokers() []BrokerIdentity {
	m := queryBrokers{reply: make(chan []BrokerIdentity, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) PreferredReplicaElection() *PreferredReplicaElection {
	m := queryElection{reply: make(chan *PreferredReplicaElection, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) ReassignPartitions() *ReassignPartitions {
	m := queryReassignment{reply: make(chan *ReassignPartitions, 1)}
	o.requests <- m
	return <-m.reply
}

func (o *Observer) TopicsLastUpdateMillis() int64 {
	m := queryTopicsLastUpdate{reply: make(chan int64, 1)}
	o.requests <- m
	return <-m.reply
}
