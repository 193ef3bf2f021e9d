// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uplink

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the sink uses
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each measurement as {"temperature":...} with QoS 0,
// not retained
type MQTTSink struct {
	client Publisher
	topic  string
	close  func()
}

// NewMQTTSink publishes through an existing client
func NewMQTTSink(client Publisher, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic}
}

// DialMQTT connects to broker and returns a sink publishing to topic
func DialMQTT(broker, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, token.Error())
	}

	s := NewMQTTSink(client, topic)
	s.close = func() { client.Disconnect(250) }
	return s, nil
}

// Send publishes m and waits for the client to hand it off
func (s *MQTTSink) Send(ctx context.Context, m measurement.Measurement) error {
	payload := measurement.AppendReport(nil, m)
	token := s.client.Publish(s.topic, 0, false, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", s.topic)
	}
}

// Close disconnects a client created by DialMQTT
func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
