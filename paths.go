package main

import "fmt"

const (
	brokerIdsPath    = "/brokers/ids"
	brokerTopicsPath = "/brokers/topics"
	consumersPath    = "/consumers"
	topicConfigPath  = "/config/topics"
	adminPath        = "/admin"
	deleteTopicsPath = "/admin/delete_topics"
)

// clusterPaths builds the ZooKeeper layout of one Kafka cluster under
// its chroot.
type clusterPaths struct {
	chroot string
}

func (p clusterPaths) brokerIds() string {
	return p.chroot + brokerIdsPath
}

func (p clusterPaths) topics() string {
	return p.chroot + brokerTopicsPath
}

func (p clusterPaths) topic(topic string) string {
	return fmt.Sprintf("%s/%s", p.topics(), topic)
}

func (p clusterPaths) partitions(topic string) string {
	return p.topic(topic) + "/partitions"
}

func (p clusterPaths) partitionState(topic string, partition string) string {
	return fmt.Sprintf("%s/%s/state", p.partitions(topic), partition)
}

func (p clusterPaths) consumers() string {
	return p.chroot + consumersPath
}

func (p clusterPaths) consumerGroup(group string) string {
	return fmt.Sprintf("%s/%s", p.consumers(), group)
}

func (p clusterPaths) consumerIds(group string) string {
	return p.consumerGroup(group) + "/ids"
}

func (p clusterPaths) consumerOffsets(group string) string {
	return p.consumerGroup(group) + "/offsets"
}

func (p clusterPaths) consumerOffsetsOfTopic(group, topic string) string {
	return fmt.Sprintf("%s/%s", p.consumerOffsets(group), topic)
}

func (p clusterPaths) consumerOwnersOfTopic(group, topic string) string {
	return fmt.Sprintf("%s/owners/%s", p.consumerGroup(group), topic)
}

func (p clusterPaths) topicConfigs() string {
	return p.chroot + topicConfigPath
}

func (p clusterPaths) admin() string {
	return p.chroot + adminPath
}

func (p clusterPaths) deleteTopics() string {
	return p.chroot + deleteTopicsPath
}
