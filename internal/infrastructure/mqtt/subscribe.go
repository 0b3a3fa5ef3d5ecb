package mqtt

import (
	"fmt"
)

// Subscribe routes messages matching topic to handler. The node subscribes
// to the resolve-request topic of its space this way.
//
// The subscription is remembered and replayed by restoreSubscriptions after
// every reconnect, so callers subscribe once. It is forgotten again if the
// broker rejects it or does not acknowledge within defaultPublishTimeout.
//
// Parameters:
//   - topic: Topic filter; "+" and "#" wildcards are allowed
//   - qos: Maximum QoS of delivered messages
//   - handler: Called on a paho goroutine per message; panics are recovered
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
//
// Example:
//
//	err := client.Subscribe(client.Topics().ResolveRequest(), 1,
//	    func(topic string, payload []byte) error {
//	        return announcer.HandleResolve(topic, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// forget drops topic from the subscriptions replayed on reconnect.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// subscribed reports whether topic is replayed on reconnect.
func (c *Client) subscribed(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
