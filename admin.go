package main

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	electionNode     = "preferred_replica_election"
	reassignmentNode = "reassign_partitions"
)

// routeAdminEvent turns a mutation under /admin into a tracker
// command. Children other than the election and reassignment markers
// are not ours to interpret.
func routeAdminEvent(event mirrorEvent) interface{} {
	switch {
	case strings.HasSuffix(event.Path, "/"+electionNode):
		if event.Kind == nodeRemoved {
			return cmdEndElection{at: event.At}
		}
		return cmdUpdateElection{at: event.Value.Mtime, payload: event.Value.Data}

	case strings.HasSuffix(event.Path, "/"+reassignmentNode):
		if event.Kind == nodeRemoved {
			return cmdEndReassignment{at: event.At}
		}
		return cmdUpdateReassignment{at: event.Value.Mtime, payload: event.Value.Data}
	}

	return nil
}

// electionTracker follows the lifecycle of one preferred-replica
// leader election at a time. The controller rewrites the admin znode
// while an election is running, so updates merge into the in-flight
// election rather than replacing it.
type electionTracker struct {
	current *PreferredReplicaElection
}

func (t *electionTracker) update(at int64, payload []byte) bool {
	partitions, err := parseElectionPayload(payload)
	if err != nil {
		log.Errorf("Problem parsing preferred replica election payload! %v", err)
		return false
	}

	if t.current == nil || t.current.EndTime != nil {
		t.current = &PreferredReplicaElection{
			StartTime:       at,
			TopicPartitions: partitions,
		}
		return true
	}

	for tp := range partitions {
		t.current.TopicPartitions[tp] = struct{}{}
	}
	return true
}

func (t *electionTracker) end(at int64) {
	if t.current == nil || t.current.EndTime != nil {
		return
	}
	t.current.EndTime = &at
}

// snapshot copies the tracker state so callers never share the
// tracker's own maps.
func (t *electionTracker) snapshot() *PreferredReplicaElection {
	if t.current == nil {
		return nil
	}

	partitions := make(map[TopicPartition]struct{}, len(t.current.TopicPartitions))
	for tp := range t.current.TopicPartitions {
		partitions[tp] = struct{}{}
	}

	copied := &PreferredReplicaElection{
		StartTime:       t.current.StartTime,
		TopicPartitions: partitions,
	}
	if t.current.EndTime != nil {
		end := *t.current.EndTime
		copied.EndTime = &end
	}
	return copied
}

// reassignmentTracker is the electionTracker's counterpart for
// partition reassignments. Merge keeps the most recent replica list
// on key collision.
type reassignmentTracker struct {
	current *ReassignPartitions
}

func (t *reassignmentTracker) update(at int64, payload []byte) bool {
	replicas, err := parseReassignmentPayload(payload)
	if err != nil {
		log.Errorf("Problem parsing partition reassignment payload! %v", err)
		return false
	}

	if t.current == nil || t.current.EndTime != nil {
		t.current = &ReassignPartitions{
			StartTime: at,
			Replicas:  replicas,
		}
		return true
	}

	for tp, r := range replicas {
		t.current.Replicas[tp] = r
	}
	return true
}

func (t *reassignmentTracker) end(at int64) {
	if t.current == nil || t.current.EndTime != nil {
		return
	}
	t.current.EndTime = &at
}

func (t *reassignmentTracker) snapshot() *ReassignPartitions {
	if t.current == nil {
		return nil
	}

	replicas := make(map[TopicPartition][]int32, len(t.current.Replicas))
	for tp, r := range t.current.Replicas {
		replicas[tp] = append([]int32(nil), r...)
	}

	copied := &ReassignPartitions{
		StartTime: t.current.StartTime,
		Replicas:  replicas,
	}
	if t.current.EndTime != nil {
		end := *t.current.EndTime
		copied.EndTime = &end
	}
	return copied
}
