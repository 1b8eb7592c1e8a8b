package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_parse_broker_identity(t *testing.T) {
	broker, err := parseBrokerIdentity(1, []byte(`{"host":"b1","port":9092,"jmx_port":-1,"version":1}`))

	assert.Nil(t, err)
	assert.Equal(t, int32(1), broker.Id)
	assert.Equal(t, "b1", broker.Host)
	assert.Equal(t, 9092, broker.Port)
	assert.Equal(t, "b1:9092", broker.Addr())
}

func Test_parse_broker_identity_failures(t *testing.T) {
	_, err := parseBrokerIdentity(1, []byte(`{{`))
	assert.NotNil(t, err)

	_, err = parseBrokerIdentity(1, []byte(`{"port":9092}`))
	assert.NotNil(t, err)
}

func Test_parse_partition_leader(t *testing.T) {
	leader, err := parsePartitionLeader([]byte(`{"controller_epoch":1,"leader":7,"version":1,"leader_epoch":0,"isr":[7,2]}`))

	assert.Nil(t, err)
	assert.Equal(t, int32(7), leader)
}

func Test_parse_partition_leader_failures(t *testing.T) {
	leader, err := parsePartitionLeader([]byte(`not json`))
	assert.NotNil(t, err)
	assert.Equal(t, leaderUnresolved, leader)

	leader, err = parsePartitionLeader([]byte(`{"isr":[1]}`))
	assert.NotNil(t, err)
	assert.Equal(t, leaderUnresolved, leader)
}

func Test_parse_election_payload(t *testing.T) {
	partitions, err := parseElectionPayload(
		[]byte(`{"version":1,"partitions":[{"topic":"t","partition":0},{"topic":"t","partition":1}]}`))

	assert.Nil(t, err)
	assert.Equal(t, 2, len(partitions))
	assert.Contains(t, partitions, TopicPartition{"t", 0})
	assert.Contains(t, partitions, TopicPartition{"t", 1})
}

func Test_parse_election_payload_failure(t *testing.T) {
	_, err := parseElectionPayload([]byte(`nope`))
	assert.NotNil(t, err)
}

func Test_parse_reassignment_payload(t *testing.T) {
	replicas, err := parseReassignmentPayload(
		[]byte(`{"version":1,"partitions":[{"topic":"t","partition":0,"replicas":[3,4]}]}`))

	assert.Nil(t, err)
	assert.Equal(t, 1, len(replicas))
	assert.Equal(t, []int32{3, 4}, replicas[TopicPartition{"t", 0}])
}

func Test_parse_committed_offset(t *testing.T) {
	offset, err := parseCommittedOffset([]byte("42"))
	assert.Nil(t, err)
	assert.Equal(t, int64(42), offset)

	_, err = parseCommittedOffset([]byte("forty-two"))
	assert.NotNil(t, err)
}

func Test_parse_partition_id(t *testing.T) {
	id, err := parsePartitionId("12")
	assert.Nil(t, err)
	assert.Equal(t, int32(12), id)

	_, err = parsePartitionId("state")
	assert.NotNil(t, err)
}

func Test_topic_description_partitions_are_sorted(t *testing.T) {
	description := &TopicDescription{
		PartitionStates: map[int32]string{2: "{}", 0: "{}", 1: "{}"},
	}

	assert.Equal(t, []int32{0, 1, 2}, description.Partitions())
}
