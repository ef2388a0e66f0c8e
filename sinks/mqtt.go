// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sinks

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig names the broker and topic an MQTT sink publishes telemetry
// lines to, mirroring the teacher's MqttConfig in cmd/mqttradio.
type MQTTConfig struct {
	Host  string
	Port  int
	User  string
	Topic string
}

// MQTT is a Sink publishing each raw telemetry line (not JSON — the line is
// already a self-delimited NMEA-style sentence) to a single MQTT topic. A
// publish failure, or a publish not acknowledged within one second, is
// logged and otherwise swallowed: telemetry export is best-effort. Write
// blocks its caller for up to that second (plus any wait for the sink's
// mutex).
type MQTT struct {
	mu    sync.Mutex
	conn  mqtt.Client
	topic string
	log   LogPrintf
}

// NewMQTT connects to the broker named by conf and returns a Sink
// publishing to conf.Topic. Grounded on the teacher's cmd/mqttradio/mqtt.go
// newMQ, trimmed to the one-way publish-only use this core needs (no
// subscriptions, no de-dup bookkeeping, since nothing here consumes MQTT
// messages back).
func NewMQTT(conf MQTTConfig, log LogPrintf) (*MQTT, error) {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "rfcore-sim"
	opts.Username = conf.User

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("sinks: MQTT connect to %s:%d timed out", conf.Host, conf.Port)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &MQTT{conn: client, topic: conf.Topic, log: log}, nil
}

func (m *MQTT) Write(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.conn.Publish(m.topic, 0, false, line)
	if !token.WaitTimeout(time.Second) {
		m.log("sinks: MQTT publish to %s timed out", m.topic)
		return
	}
	if err := token.Error(); err != nil {
		m.log("sinks: MQTT publish to %s failed: %s", m.topic, err)
	}
}

var _ Sink = (*MQTT)(nil)
