// Package events publishes inspection lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "inspections/completed"

// Completed is emitted once an inspection has been committed.
type Completed struct {
	InspectionID  string    `json:"inspection_id"`
	VehicleID     string    `json:"vehicle_id"`
	ReferenceCode string    `json:"reference_code"`
	Status        string    `json:"status"`
	Items         int       `json:"items"`
	NonConforming int       `json:"non_conforming"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Publisher delivers completion events.
type Publisher interface {
	PublishCompleted(ctx context.Context, ev Completed) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishCompleted(context.Context, Completed) error { return nil }
func (NopPublisher) Close()                                            {}

// mqttClient is the part of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events as JSON with QoS 1.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	timeout time.Duration
}

// NewMQTTPublisher connects to broker and returns a publisher for topic.
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker is empty")
	}
	if clientID == "" {
		clientID = "truck-inspection"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	log.WithFields(log.Fields{"broker": broker, "topic": topic}).Info("mqtt publisher connected")
	return newMQTTPublisher(client, topic), nil
}

func newMQTTPublisher(client mqttClient, topic string) *MQTTPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{client: client, topic: topic, timeout: 5 * time.Second}
}

func (p *MQTTPublisher) PublishCompleted(ctx context.Context, ev Completed) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	token := p.client.Publish(p.topic, 1, false, payload)

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s: timeout", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
