package mqtt

import (
	"strings"
	"sync"
)

// PublishedMessage is one recorded outbound message.
type PublishedMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeClient records publishes and lets tests deliver inbound messages
// to subscribed handlers.
type FakeClient struct {
	mu sync.Mutex

	// Published contains all messages in publish order.
	Published []PublishedMessage

	// PublishError, if set, is returned by Publish.
	PublishError error

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error

	// Closed tracks whether Close was called.
	Closed bool

	// Connected controls IsConnected.
	Connected bool

	subscriptions map[string]func(topic string, payload []byte)
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Connected:     true,
		subscriptions: make(map[string]func(topic string, payload []byte)),
	}
}

func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	f.Published = append(f.Published, PublishedMessage{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  append([]byte(nil), payload...),
	})

	return nil
}

func (f *FakeClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.subscriptions[topic] = handler

	return nil
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Deliver routes an inbound message to the handler whose filter matches
// the topic, emulating broker-side wildcard matching.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	var handler func(string, []byte)
	for filter, h := range f.subscriptions {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(topic, payload)

	return true
}

// Messages returns a copy of the recorded publishes.
func (f *FakeClient) Messages() []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PublishedMessage(nil), f.Published...)
}

// topicMatches implements single-level (+) and multi-level (#) MQTT
// wildcard matching.
func topicMatches(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, fp := range fparts {
		if fp == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if fp != "+" && fp != tparts[i] {
			return false
		}
	}

	return len(fparts) == len(tparts)
}
