package config

const (
	// TopicPolicyIngest is the NSQ topic for policy corpus ingestion tasks.
	TopicPolicyIngest = "policy.ingest"

	// TopicChatMessage is the NSQ topic carrying chat messages for room broadcast.
	TopicChatMessage = "chat.message"
)
