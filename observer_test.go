package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestObserver(engine *queryEngine) *Observer {
	o := &Observer{
		config:   &ObserverConfig{},
		engine:   engine,
		requests: make(chan interface{}),
		events:   make(chan mirrorEvent),
		stopCh:   make(chan struct{}),
	}
	go o.serve()
	return o
}

func (o *Observer) observe(event mirrorEvent) {
	o.events <- event
}

func Test_observer_answers_queries(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{})
	seed(engine.brokerIds, "/brokers/ids/1", `{"host":"b1","port":9092}`)

	o := newTestObserver(engine)
	defer close(o.stopCh)

	assert.Equal(t, []string{"t"}, o.Topics().Topics)
	assert.Equal(t, 1, len(o.Brokers()))
	assert.NotNil(t, o.TopicDescription("t"))
	assert.Nil(t, o.TopicDescription("nope"))
	assert.Nil(t, o.ConsumedTopicState("g", "t"))
	assert.Equal(t, 0, len(o.Consumers().Consumers))
}

func Test_observer_gates_topic_descriptions_on_freshness(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{})

	o := newTestObserver(engine)
	defer close(o.stopCh)

	// nothing observed yet, nothing to say
	assert.Nil(t, o.AllTopicDescriptions(0))

	o.topicsClock.touch()
	now := o.TopicsLastUpdateMillis()

	assert.Nil(t, o.AllTopicDescriptions(now))

	response := o.AllTopicDescriptions(now - 1)
	assert.NotNil(t, response)
	assert.Equal(t, 1, len(response.Descriptions))
	assert.Equal(t, now, response.LastUpdateMillis)

	batch := o.TopicDescriptions([]string{"t"})
	assert.Equal(t, now, batch.LastUpdateMillis)
}

func Test_observer_gates_consumer_descriptions_on_freshness(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", []string{"t"})
	seed(engine.consumers, "/consumers/g/offsets/t/0", "1")

	o := newTestObserver(engine)
	defer close(o.stopCh)

	assert.Nil(t, o.AllConsumerDescriptions(0))

	o.consumersClock.touch()
	now := o.consumersClock.lastUpdate()

	assert.Nil(t, o.AllConsumerDescriptions(now))

	response := o.AllConsumerDescriptions(now - 1)
	assert.NotNil(t, response)
	assert.Equal(t, 1, len(response.Descriptions))
	assert.Equal(t, "g", response.Descriptions[0].Group)
}

func Test_observer_tracks_an_election_through_admin_events(t *testing.T) {
	engine, _ := newTestEngine(nil)
	o := newTestObserver(engine)
	defer close(o.stopCh)

	assert.Nil(t, o.PreferredReplicaElection())

	o.observe(mirrorEvent{
		Mirror: "admin",
		Kind:   nodeAdded,
		Path:   "/admin/preferred_replica_election",
		Value: NodeValue{
			Mtime: 1000,
			Data:  electionJSON(`{"topic":"t","partition":0},{"topic":"t","partition":1}`),
		},
	})
	o.observe(mirrorEvent{
		Mirror: "admin",
		Kind:   nodeUpdated,
		Path:   "/admin/preferred_replica_election",
		Value: NodeValue{
			Mtime: 1500,
			Data:  electionJSON(`{"topic":"t","partition":2}`),
		},
	})

	election := o.PreferredReplicaElection()
	assert.Equal(t, int64(1000), election.StartTime)
	assert.Nil(t, election.EndTime)
	assert.Equal(t, 3, len(election.TopicPartitions))

	o.observe(mirrorEvent{
		Mirror: "admin",
		Kind:   nodeRemoved,
		Path:   "/admin/preferred_replica_election",
		At:     2000,
	})

	election = o.PreferredReplicaElection()
	assert.Equal(t, int64(1000), election.StartTime)
	assert.Equal(t, int64(2000), *election.EndTime)
}

func Test_observer_tracks_a_reassignment_through_admin_events(t *testing.T) {
	engine, _ := newTestEngine(nil)
	o := newTestObserver(engine)
	defer close(o.stopCh)

	assert.Nil(t, o.ReassignPartitions())

	o.observe(mirrorEvent{
		Mirror: "admin",
		Kind:   nodeAdded,
		Path:   "/admin/reassign_partitions",
		Value: NodeValue{
			Mtime: 1000,
			Data:  []byte(`{"version":1,"partitions":[{"topic":"t","partition":0,"replicas":[1,2]}]}`),
		},
	})

	reassignment := o.ReassignPartitions()
	assert.Equal(t, int64(1000), reassignment.StartTime)
	assert.Equal(t, []int32{1, 2}, reassignment.Replicas[TopicPartition{"t", 0}])
}

func Test_observer_ignores_unknown_messages(t *testing.T) {
	engine, _ := newTestEngine(nil)
	o := newTestObserver(engine)
	defer close(o.stopCh)

	o.requests <- struct{ name string }{"bogus"}

	// the loop is still serving
	assert.Equal(t, 0, len(o.Topics().Topics))
}

func Test_observer_ignores_other_admin_children(t *testing.T) {
	engine, _ := newTestEngine(nil)
	o := newTestObserver(engine)
	defer close(o.stopCh)

	o.observe(mirrorEvent{
		Mirror: "admin",
		Kind:   nodeAdded,
		Path:   "/admin/delete_topics",
	})

	assert.Nil(t, o.PreferredReplicaElection())
	assert.Nil(t, o.ReassignPartitions())
}
