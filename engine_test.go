package main

import (
	"testing"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
)

// stubOffsets resolves leaders against the broker snapshot like the
// real fetcher, but answers from a fixed table instead of the wire.
type stubOffsets struct {
	byPartition map[int32]int64
	leaderMaps  []map[int32]int32
}

func (s *stubOffsets) LatestOffsets(topic string, leaders map[int32]int32, brokers map[int32]BrokerIdentity) map[int32]*int64 {
	s.leaderMaps = append(s.leaderMaps, leaders)

	r := make(map[int32]*int64, len(leaders))
	for partition, leader := range leaders {
		r[partition] = nil
		if _, live := brokers[leader]; !live {
			continue
		}
		if offset, known := s.byPartition[partition]; known {
			value := offset
			r[partition] = &value
		}
	}
	return r
}

func newTestEngine(offsets map[int32]int64) (*queryEngine, *stubOffsets) {
	stub := &stubOffsets{byPartition: offsets}
	engine := &queryEngine{
		paths:             clusterPaths{},
		topics:            newMirrorStore(),
		consumers:         newMirrorStore(),
		brokerIds:         newMirrorStore(),
		topicConfigs:      newMirrorStore(),
		deleteTopics:      newMirrorStore(),
		fetcher:           stub,
		activeMinChildren: 3,
	}
	return engine, stub
}

func seed(store *mirrorStore, path, data string) {
	store.set(path, NodeValue{Version: 1, Mtime: 1000, Data: []byte(data)})
}

func seedTopic(engine *queryEngine, topic string, leaders map[string]string) {
	seed(engine.topics, "/brokers/topics/"+topic, `{"version":1}`)
	seed(engine.topics, "/brokers/topics/"+topic+"/partitions", "")
	for partition, state := range leaders {
		seed(engine.topics, "/brokers/topics/"+topic+"/partitions/"+partition, "")
		if state != "" {
			seed(engine.topics, "/brokers/topics/"+topic+"/partitions/"+partition+"/state", state)
		}
	}
}

func Test_topic_description_with_latest_offsets(t *testing.T) {
	engine, _ := newTestEngine(map[int32]int64{0: 100, 1: 250})
	seed(engine.brokerIds, "/brokers/ids/1", `{"host":"b1","port":9092}`)
	seedTopic(engine, "t", map[string]string{
		"0": `{"leader":1,"isr":[1]}`,
		"1": `{"leader":1,"isr":[1]}`,
	})

	description := engine.topicDescription("t")

	assert.NotNil(t, description)
	assert.Equal(t, "t", description.Topic)
	assert.Equal(t, `{"version":1}`, string(description.Assignment.Data))
	assert.Equal(t, 2, len(description.PartitionStates))
	assert.Equal(t, int64(100), *description.LatestOffsets[0])
	assert.Equal(t, int64(250), *description.LatestOffsets[1])
	assert.Nil(t, description.Config)
}

func Test_topic_description_of_missing_topic(t *testing.T) {
	engine, _ := newTestEngine(nil)
	assert.Nil(t, engine.topicDescription("nope"))
}

func Test_unresolvable_leader_yields_no_offset(t *testing.T) {
	engine, _ := newTestEngine(map[int32]int64{0: 100})
	seedTopic(engine, "t", map[string]string{
		"0": `{"leader":7,"isr":[7]}`,
	})

	description := engine.topicDescription("t")

	assert.NotNil(t, description)
	assert.Nil(t, description.LatestOffsets[0])
}

func Test_malformed_partition_state_keeps_the_description(t *testing.T) {
	engine, stub := newTestEngine(map[int32]int64{0: 100, 1: 250})
	seed(engine.brokerIds, "/brokers/ids/1", `{"host":"b1","port":9092}`)
	seedTopic(engine, "t", map[string]string{
		"0": `{"leader":1,"isr":[1]}`,
		"1": `oops`,
	})

	description := engine.topicDescription("t")

	assert.NotNil(t, description)
	assert.Equal(t, "oops", description.PartitionStates[1])
	assert.Equal(t, int64(100), *description.LatestOffsets[0])
	assert.Nil(t, description.LatestOffsets[1])

	// the bad partition was marked unresolvable, not pinned on a broker
	assert.Equal(t, leaderUnresolved, stub.leaderMaps[0][1])
}

func Test_partitions_without_state_are_skipped(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{
		"0": `{"leader":1}`,
		"1": "",
	})

	description := engine.topicDescription("t")

	assert.Equal(t, 1, len(description.PartitionStates))
	assert.Equal(t, 1, len(description.LatestOffsets))
}

func Test_topic_description_includes_config(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{})
	seed(engine.topicConfigs, "/config/topics/t", `{"version":1,"config":{"retention.ms":"100"}}`)

	description := engine.topicDescription("t")

	assert.NotNil(t, description.Config)
	assert.Equal(t, `{"version":1,"config":{"retention.ms":"100"}}`, string(description.Config.Data))
	assert.Nil(t, engine.topicConfig("u"))
}

func Test_topic_list(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{})
	seedTopic(engine, "u", map[string]string{})
	seed(engine.deleteTopics, "/admin/delete_topics/u", "")

	list := engine.topicList()
	assert.Equal(t, []string{"t", "u"}, list.Topics)
	assert.Equal(t, []string{}, list.PendingDeletes)

	engine.deleteSupported = true
	list = engine.topicList()
	assert.Equal(t, []string{"u"}, list.PendingDeletes)
}

func Test_topic_list_honors_the_observe_filter(t *testing.T) {
	engine, _ := newTestEngine(nil)
	engine.topicFilter = glob.MustCompile("app.*")
	seedTopic(engine, "app.events", map[string]string{})
	seedTopic(engine, "other", map[string]string{})

	assert.Equal(t, []string{"app.events"}, engine.topicList().Topics)
}

func Test_topic_descriptions_skip_missing_topics(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedTopic(engine, "t", map[string]string{})

	descriptions := engine.topicDescriptions([]string{"t", "nope"})
	assert.Equal(t, 1, len(descriptions))
	assert.Equal(t, "t", descriptions[0].Topic)
}

func seedGroup(engine *queryEngine, group string, topics []string) {
	seed(engine.consumers, "/consumers/"+group, "")
	seed(engine.consumers, "/consumers/"+group+"/ids", "")
	seed(engine.consumers, "/consumers/"+group+"/offsets", "")
	seed(engine.consumers, "/consumers/"+group+"/owners", "")
	for _, topic := range topics {
		seed(engine.consumers, "/consumers/"+group+"/offsets/"+topic, "")
		seed(engine.consumers, "/consumers/"+group+"/owners/"+topic, "")
	}
}

func Test_consumed_topic_state(t *testing.T) {
	engine, _ := newTestEngine(map[int32]int64{0: 100, 1: 250})
	seed(engine.brokerIds, "/brokers/ids/1", `{"host":"b1","port":9092}`)
	seedTopic(engine, "t", map[string]string{
		"0": `{"leader":1}`,
		"1": `{"leader":1}`,
	})

	seedGroup(engine, "g", []string{"t"})
	seed(engine.consumers, "/consumers/g/offsets/t/0", "42")
	seed(engine.consumers, "/consumers/g/offsets/t/1", "17")
	seed(engine.consumers, "/consumers/g/owners/t/0", "g_consumer_0-0")

	state := engine.consumedTopicState("g", "t")

	assert.NotNil(t, state)
	assert.Equal(t, 2, state.PartitionCount)
	assert.Equal(t, map[int32]int64{0: 42, 1: 17}, state.CommittedOffsets)
	assert.Equal(t, map[int32]string{0: "g_consumer_0-0"}, state.Owners)
	assert.Equal(t, int64(100), *state.LatestOffsets[0])
	assert.Equal(t, int64(250), *state.LatestOffsets[1])
}

func Test_consumed_topic_state_of_unknown_topic(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", []string{"gone"})
	seed(engine.consumers, "/consumers/g/offsets/gone/0", "1")
	seed(engine.consumers, "/consumers/g/offsets/gone/1", "2")
	seed(engine.consumers, "/consumers/g/offsets/gone/2", "3")

	state := engine.consumedTopicState("g", "gone")

	// the topic is no longer registered, so the committed offsets
	// are the only sizing signal left
	assert.Equal(t, 3, state.PartitionCount)
	assert.Equal(t, 0, len(state.LatestOffsets))
}

func Test_consumed_topic_state_requires_offsets_or_owners(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", nil)

	assert.Nil(t, engine.consumedTopicState("g", "t"))
}

func Test_bad_committed_offsets_are_dropped(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", []string{"t"})
	seed(engine.consumers, "/consumers/g/offsets/t/0", "42")
	seed(engine.consumers, "/consumers/g/offsets/t/1", "not-a-number")

	state := engine.consumedTopicState("g", "t")
	assert.Equal(t, map[int32]int64{0: 42}, state.CommittedOffsets)
}

func Test_consumer_description(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", []string{"t", "u"})
	seed(engine.consumers, "/consumers/g/offsets/t/0", "1")
	seed(engine.consumers, "/consumers/g/offsets/u/0", "2")

	description := engine.consumerDescription("g")

	assert.NotNil(t, description)
	assert.Equal(t, "g", description.Group)
	assert.Equal(t, 2, len(description.Topics))
	assert.Equal(t, int64(1), description.Topics["t"].CommittedOffsets[0])

	assert.Nil(t, engine.consumerDescription("nobody"))
}

func Test_consumer_list_filters_inactive_groups(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seedGroup(engine, "g", []string{"t"})
	seed(engine.consumers, "/consumers/inactive", "")
	seed(engine.consumers, "/consumers/inactive/ids", "")

	list := engine.consumerList()
	assert.Equal(t, []string{"g", "inactive"}, list.Consumers)

	engine.filterInactive = true
	list = engine.consumerList()
	assert.Equal(t, []string{"g"}, list.Consumers)

	// the heuristic threshold is a knob
	engine.activeMinChildren = 1
	list = engine.consumerList()
	assert.Equal(t, []string{"g", "inactive"}, list.Consumers)
}

func Test_consumer_list_honors_the_observe_filter(t *testing.T) {
	engine, _ := newTestEngine(nil)
	engine.groupFilter = glob.MustCompile("app-*")
	seedGroup(engine, "app-workers", nil)
	seedGroup(engine, "other", nil)

	assert.Equal(t, []string{"app-workers"}, engine.consumerList().Consumers)
}

func Test_brokers_are_sorted_and_bad_registrations_dropped(t *testing.T) {
	engine, _ := newTestEngine(nil)
	seed(engine.brokerIds, "/brokers/ids/3", `{"host":"b3","port":9094}`)
	seed(engine.brokerIds, "/brokers/ids/1", `{"host":"b1","port":9092}`)
	seed(engine.brokerIds, "/brokers/ids/2", `broken`)

	brokers := engine.brokers()

	assert.Equal(t, 2, len(brokers))
	assert.Equal(t, int32(1), brokers[0].Id)
	assert.Equal(t, int32(3), brokers[1].Id)
	assert.Equal(t, "b3:9094", brokers[1].Addr())
}
