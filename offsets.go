package main

import (
	"sort"
	"time"

	"github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"
)

const offsetClientID = "partitionOffsetGetter"

// offsetFetcher returns the latest log-end offset for every partition
// in the leader map. A partition whose offset cannot be determined
// maps to nil; the fetch itself never fails.
type offsetFetcher interface {
	LatestOffsets(topic string, leaders map[int32]int32, brokers map[int32]BrokerIdentity) map[int32]*int64
}

// brokerOffsetFetcher asks each partition leader for its newest
// offset with a single OffsetRequest per broker, one synchronous
// connection at a time.
type brokerOffsetFetcher struct {
	timeout  time.Duration
	recorder *Recorder
}

func newBrokerOffsetFetcher(timeout time.Duration, recorder *Recorder) *brokerOffsetFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &brokerOffsetFetcher{timeout: timeout, recorder: recorder}
}

func (f *brokerOffsetFetcher) LatestOffsets(topic string, leaders map[int32]int32, brokers map[int32]BrokerIdentity) map[int32]*int64 {
	started := time.Now()
	offsets := make(map[int32]*int64, len(leaders))
	for partition := range leaders {
		offsets[partition] = nil
	}

	for _, leader := range sortedLeaders(leaders) {
		identity, resolved := brokers[leader.id]
		if !resolved {
			log.WithFields(log.Fields{
				"topic":  topic,
				"broker": leader.id,
			}).Debugf("No live registration for leader of partitions %v", leader.partitions)
			continue
		}

		f.fetchFromLeader(topic, identity, leader.partitions, offsets)
	}

	misses := 0
	for _, offset := range offsets {
		if offset == nil {
			misses++
		}
	}
	f.recorder.OffsetFetch(topic, len(offsets), misses, time.Since(started))

	return offsets
}

func (f *brokerOffsetFetcher) fetchFromLeader(topic string, identity BrokerIdentity, partitions []int32, offsets map[int32]*int64) {
	config := sarama.NewConfig()
	config.ClientID = offsetClientID
	config.Version = sarama.V0_8_2_0
	config.Net.DialTimeout = f.timeout
	config.Net.ReadTimeout = f.timeout
	config.Net.WriteTimeout = f.timeout

	broker := sarama.NewBroker(identity.Addr())
	if err := broker.Open(config); err != nil {
		log.WithFields(log.Fields{
			"topic":  topic,
			"broker": identity.Id,
			"addr":   identity.Addr(),
		}).Errorf("Could not open connection to leader: %v", err)
		return
	}
	defer broker.Close()

	if _, err := broker.Connected(); err != nil {
		log.WithFields(log.Fields{
			"topic":  topic,
			"broker": identity.Id,
			"addr":   identity.Addr(),
		}).Errorf("Could not connect to leader: %v", err)
		return
	}

	request := &sarama.OffsetRequest{}
	for _, partition := range partitions {
		request.AddBlock(topic, partition, sarama.OffsetNewest, 1)
	}

	response, err := broker.GetAvailableOffsets(request)
	if err != nil {
		log.WithFields(log.Fields{
			"topic":  topic,
			"broker": identity.Id,
		}).Errorf("Problem fetching offsets! %v", err)
		return
	}

	for _, partition := range partitions {
		block := response.GetBlock(topic, partition)
		if block == nil {
			continue
		}
		if block.Err != sarama.ErrNoError {
			log.WithFields(log.Fields{
				"topic":     topic,
				"partition": partition,
				"broker":    identity.Id,
			}).Errorf("Problem fetching offset! %v", block.Err)
			continue
		}
		if len(block.Offsets) == 0 {
			continue
		}

		offset := block.Offsets[0]
		offsets[partition] = &offset
	}
}

type leaderPartitions struct {
	id         int32
	partitions []int32
}

// sortedLeaders groups partitions under their leader, ordered by
// broker id then partition id so fetches are deterministic.
func sortedLeaders(leaders map[int32]int32) []leaderPartitions {
	byLeader := make(map[int32][]int32)
	for partition, leader := range leaders {
		byLeader[leader] = append(byLeader[leader], partition)
	}

	r := make([]leaderPartitions, 0, len(byLeader))
	for id, partitions := range byLeader {
		sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
		r = append(r, leaderPartitions{id: id, partitions: partitions})
	}
	sort.Slice(r, func(i, j int) bool { return r[i].id < r[j].id })
	return r
}
