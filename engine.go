package main

import (
	"sort"
	"strconv"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"
)

// queryEngine composes mirror snapshots, stored payloads, and latest
// offsets into the denormalised views served to callers. Every
// method returns well-typed partial data; malformed records are
// logged and dropped, never surfaced as errors.
type queryEngine struct {
	paths clusterPaths

	topics       *mirrorStore
	consumers    *mirrorStore
	brokerIds    *mirrorStore
	topicConfigs *mirrorStore
	deleteTopics *mirrorStore

	fetcher  offsetFetcher
	recorder *Recorder

	deleteSupported   bool
	filterInactive    bool
	activeMinChildren int
	topicFilter       glob.Glob
	groupFilter       glob.Glob
}

func (e *queryEngine) topicList() TopicList {
	list := TopicList{
		Topics:         e.topicNames(),
		PendingDeletes: make([]string, 0),
	}

	if e.deleteSupported && e.deleteTopics != nil {
		for name := range e.deleteTopics.childrenOf(e.paths.deleteTopics()) {
			list.PendingDeletes = append(list.PendingDeletes, name)
		}
		sort.Strings(list.PendingDeletes)
	}

	return list
}

func (e *queryEngine) topicNames() []string {
	names := make([]string, 0)
	for name := range e.topics.childrenOf(e.paths.topics()) {
		if e.topicFilter != nil && !e.topicFilter.Match(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *queryEngine) topicDescription(topic string) *TopicDescription {
	assignment, ok := e.topics.dataAt(e.paths.topic(topic))
	if !ok {
		return nil
	}

	states := make(map[int32]string)
	leaders := make(map[int32]int32)
	partitionsPath := e.paths.partitions(topic)

	for name := range e.topics.childrenOf(partitionsPath) {
		partition, err := parsePartitionId(name)
		if err != nil {
			log.WithFields(log.Fields{
				"topic": topic,
			}).Errorf("Problem parsing partition id %q! %v", name, err)
			e.recorder.ParseFailure("partition_id")
			continue
		}

		state, ok := e.topics.dataAt(e.paths.partitionState(topic, name))
		if !ok {
			continue
		}

		states[partition] = string(state.Data)

		leader, err := parsePartitionLeader(state.Data)
		if err != nil {
			log.WithFields(log.Fields{
				"topic":     topic,
				"partition": partition,
			}).Errorf("Problem parsing partition state! %v", err)
			e.recorder.ParseFailure("partition_state")
			leader = leaderUnresolved
		}
		leaders[partition] = leader
	}

	return &TopicDescription{
		Topic:           topic,
		Assignment:      assignment,
		PartitionStates: states,
		LatestOffsets:   e.fetcher.LatestOffsets(topic, leaders, e.brokersById()),
		Config:          e.topicConfig(topic),
		DeleteSupported: e.deleteSupported,
	}
}

func (e *queryEngine) topicDescriptions(topics []string) []TopicDescription {
	r := make([]TopicDescription, 0, len(topics))
	for _, topic := range topics {
		if description := e.topicDescription(topic); description != nil {
			r = append(r, *description)
		}
	}
	return r
}

func (e *queryEngine) topicConfig(topic string) *NodeValue {
	for name, value := range e.topicConfigs.childrenOf(e.paths.topicConfigs()) {
		if name == topic {
			v := value
			return &v
		}
	}
	return nil
}

func (e *queryEngine) consumerList() ConsumerList {
	list := ConsumerList{Consumers: make([]string, 0)}
	for group := range e.consumers.childrenOf(e.paths.consumers()) {
		if e.groupFilter != nil && !e.groupFilter.Match(group) {
			continue
		}
		if e.filterInactive && !e.looksActive(group) {
			continue
		}
		list.Consumers = append(list.Consumers, group)
	}
	sort.Strings(list.Consumers)
	return list
}

// looksActive applies the child-count heuristic: a group that is
// actually consuming has at least ids/, offsets/, and owners/ under
// its znode.
func (e *queryEngine) looksActive(group string) bool {
	children := e.consumers.childrenOf(e.paths.consumerGroup(group))
	return len(children) >= e.activeMinChildren
}

func (e *queryEngine) consumerDescription(group string) *ConsumerDescription {
	topics := e.consumers.childrenOf(e.paths.consumerOffsets(group))
	if len(topics) == 0 {
		if _, ok := e.consumers.dataAt(e.paths.consumerGroup(group)); !ok {
			return nil
		}
	}

	description := &ConsumerDescription{
		Group:  group,
		Topics: make(map[string]*ConsumedTopicState, len(topics)),
	}

	for topic := range topics {
		if state := e.consumedTopicState(group, topic); state != nil {
			description.Topics[topic] = state
		}
	}

	return description
}

func (e *queryEngine) consumerDescriptions(groups []string) []ConsumerDescription {
	r := make([]ConsumerDescription, 0, len(groups))
	for _, group := range groups {
		if description := e.consumerDescription(group); description != nil {
			r = append(r, *description)
		}
	}
	return r
}

func (e *queryEngine) consumedTopicState(group, topic string) *ConsumedTopicState {
	offsetsPath := e.paths.consumerOffsetsOfTopic(group, topic)
	ownersPath := e.paths.consumerOwnersOfTopic(group, topic)

	_, offsetsExist := e.consumers.dataAt(offsetsPath)
	_, ownersExist := e.consumers.dataAt(ownersPath)
	if !offsetsExist && !ownersExist {
		return nil
	}

	committed := make(map[int32]int64)
	for name, value := range e.consumers.childrenOf(offsetsPath) {
		partition, err := parsePartitionId(name)
		if err != nil {
			log.WithFields(log.Fields{
				"group": group,
				"topic": topic,
			}).Errorf("Problem parsing partition id %q! %v", name, err)
			e.recorder.ParseFailure("partition_id")
			continue
		}

		offset, err := parseCommittedOffset(value.Data)
		if err != nil {
			log.WithFields(log.Fields{
				"group":     group,
				"topic":     topic,
				"partition": partition,
			}).Errorf("Problem parsing committed offset! %v", err)
			e.recorder.ParseFailure("committed_offset")
			continue
		}

		committed[partition] = offset
	}

	owners := make(map[int32]string)
	for name, value := range e.consumers.childrenOf(ownersPath) {
		partition, err := parsePartitionId(name)
		if err != nil {
			log.WithFields(log.Fields{
				"group": group,
				"topic": topic,
			}).Errorf("Problem parsing partition id %q! %v", name, err)
			e.recorder.ParseFailure("partition_id")
			continue
		}
		owners[partition] = string(value.Data)
	}

	known := make(map[int32]*int64)
	stateCount := 0
	if description := e.topicDescription(topic); description != nil {
		known = description.LatestOffsets
		stateCount = len(description.PartitionStates)
	}

	partitionCount := stateCount
	if len(committed) > partitionCount {
		partitionCount = len(committed)
	}

	return &ConsumedTopicState{
		Group:            group,
		Topic:            topic,
		PartitionCount:   partitionCount,
		LatestOffsets:    known,
		Owners:           owners,
		CommittedOffsets: committed,
	}
}

func (e *queryEngine) brokers() []BrokerIdentity {
	r := make([]BrokerIdentity, 0)
	for name, value := range e.brokerIds.childrenOf(e.paths.brokerIds()) {
		id, err := strconv.Atoi(name)
		if err != nil {
			log.Errorf("Problem parsing broker id %q! %v", name, err)
			e.recorder.ParseFailure("broker_id")
			continue
		}

		identity, err := parseBrokerIdentity(int32(id), value.Data)
		if err != nil {
			log.WithFields(log.Fields{
				"broker": id,
			}).Errorf("Problem parsing broker registration! %v", err)
			e.recorder.ParseFailure("broker_registration")
			continue
		}

		r = append(r, identity)
	}

	sort.Slice(r, func(i, j int) bool { return r[i].Id < r[j].Id })
	return r
}

func (e *queryEngine) brokersById() map[int32]BrokerIdentity {
	r := make(map[int32]BrokerIdentity)
	for _, broker := range e.brokers() {
		r[broker.Id] = broker
	}
	return r
}
