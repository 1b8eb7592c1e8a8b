package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// leaderUnresolved marks a partition whose leader could not be read
// out of its state payload. No broker ever registers with a negative
// id, so offset lookups for it always come back empty.
const leaderUnresolved int32 = -1

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s#%d", tp.Topic, tp.Partition)
}

// BrokerIdentity is a live broker registration from /brokers/ids.
type BrokerIdentity struct {
	Id   int32  `json:"-"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (b BrokerIdentity) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

func parseBrokerIdentity(id int32, data []byte) (BrokerIdentity, error) {
	b := BrokerIdentity{}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, err
	}
	if b.Host == "" {
		return b, fmt.Errorf("broker %d registration has no host", id)
	}
	b.Id = id
	return b, nil
}

// parsePartitionLeader pulls the leader broker id out of a partition
// state payload; the rest of the payload is passed through verbatim.
func parsePartitionLeader(data []byte) (int32, error) {
	state := struct {
		Leader *int32 `json:"leader"`
	}{}
	if err := json.Unmarshal(data, &state); err != nil {
		return leaderUnresolved, err
	}
	if state.Leader == nil {
		return leaderUnresolved, fmt.Errorf("partition state has no leader field")
	}
	return *state.Leader, nil
}

// TopicList answers the Topics query: everything registered under
// /brokers/topics, plus any pending delete markers.
type TopicList struct {
	Topics         []string
	PendingDeletes []string
}

// NodeValue is one ZooKeeper node's payload at a point in time.
type NodeValue struct {
	Version int32
	Mtime   int64
	Data    []byte
}

type TopicDescription struct {
	Topic           string
	Assignment      NodeValue
	PartitionStates map[int32]string
	LatestOffsets   map[int32]*int64
	Config          *NodeValue
	DeleteSupported bool
}

// Partitions returns the described partition ids in ascending order.
func (d *TopicDescription) Partitions() []int32 {
	ids := make([]int32, 0, len(d.PartitionStates))
	for id := range d.PartitionStates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type ConsumedTopicState struct {
	Group            string
	Topic            string
	PartitionCount   int
	LatestOffsets    map[int32]*int64
	Owners           map[int32]string
	CommittedOffsets map[int32]int64
}

type ConsumerDescription struct {
	Group  string
	Topics map[string]*ConsumedTopicState
}

type ConsumerList struct {
	Consumers []string
}

// PreferredReplicaElection is the lifecycle of one in-flight
// preferred-replica leader election, observed through /admin.
type PreferredReplicaElection struct {
	StartTime       int64
	TopicPartitions map[TopicPartition]struct{}
	EndTime         *int64
}

// ReassignPartitions is the lifecycle of one in-flight partition
// reassignment, observed through /admin.
type ReassignPartitions struct {
	StartTime int64
	Replicas  map[TopicPartition][]int32
	EndTime   *int64
}

// parseElectionPayload decodes the preferred_replica_election znode:
// {"version":1,"partitions":[{"topic":"t","partition":0},...]}
func parseElectionPayload(data []byte) (map[TopicPartition]struct{}, error) {
	payload := struct {
		Partitions []struct {
			Topic     string `json:"topic"`
			Partition int32  `json:"partition"`
		} `json:"partitions"`
	}{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	r := make(map[TopicPartition]struct{}, len(payload.Partitions))
	for _, p := range payload.Partitions {
		r[TopicPartition{p.Topic, p.Partition}] = struct{}{}
	}
	return r, nil
}

// parseReassignmentPayload decodes the reassign_partitions znode:
// {"version":1,"partitions":[{"topic":"t","partition":0,"replicas":[1,2]},...]}
func parseReassignmentPayload(data []byte) (map[TopicPartition][]int32, error) {
	payload := struct {
		Partitions []struct {
			Topic     string  `json:"topic"`
			Partition int32   `json:"partition"`
			Replicas  []int32 `json:"replicas"`
		} `json:"partitions"`
	}{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	r := make(map[TopicPartition][]int32, len(payload.Partitions))
	for _, p := range payload.Partitions {
		r[TopicPartition{p.Topic, p.Partition}] = p.Replicas
	}
	return r, nil
}

// parseCommittedOffset reads the ASCII decimal stored under
// /consumers/<group>/offsets/<topic>/<partition>.
func parseCommittedOffset(data []byte) (int64, error) {
	return strconv.ParseInt(string(data), 10, 64)
}

func parsePartitionId(name string) (int32, error) {
	id, err := strconv.Atoi(name)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}
