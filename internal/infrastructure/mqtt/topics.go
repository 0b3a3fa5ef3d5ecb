package mqtt

import "fmt"

// TopicRoot is the namespace shared by every node of a deployment.
const TopicRoot = "ose"

// Topics builds the MQTT topics of one node.
//
// Every topic sits under ose/{space}/ so that nodes serving different
// data spaces can share a broker:
//
//	topics := mqtt.Topics{Space: "example.org", Instance: "dvb"}
//	topics.Entry("dvb", "dvbstreamer")
//	// Returns: "ose/example.org/dvb/entry/dvbstreamer"
type Topics struct {
	Space    string
	Instance string
}

// Entry returns the retained topic announcing a resolved shard entry.
//
// Example: ose/example.org/dvb/entry/dvbstreamer
func (t Topics) Entry(shardAlias, alias string) string {
	return fmt.Sprintf("%s/%s/%s/entry/%s", TopicRoot, t.Space, shardAlias, alias)
}

// AllEntries returns a wildcard topic matching every entry of a shard.
//
// Example: ose/example.org/dvb/entry/+
func (t Topics) AllEntries(shardAlias string) string {
	return fmt.Sprintf("%s/%s/%s/entry/+", TopicRoot, t.Space, shardAlias)
}

// NodeStatus returns the retained online/offline topic of this node.
// The broker publishes the last will here on an unexpected disconnect.
//
// Example: ose/example.org/node/dvb/status
func (t Topics) NodeStatus() string {
	return fmt.Sprintf("%s/%s/node/%s/status", TopicRoot, t.Space, t.Instance)
}

// ResolveRequest returns the topic on which device-control peers ask this
// node to resolve an entry.
//
// Example: ose/example.org/node/dvb/resolve
func (t Topics) ResolveRequest() string {
	return fmt.Sprintf("%s/%s/node/%s/resolve", TopicRoot, t.Space, t.Instance)
}

// ResolveReply returns the topic a resolve answer is published on.
//
// Example: ose/example.org/node/dvb/resolve/req-42
func (t Topics) ResolveReply(requestID string) string {
	return fmt.Sprintf("%s/%s/node/%s/resolve/%s", TopicRoot, t.Space, t.Instance, requestID)
}
