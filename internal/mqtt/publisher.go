package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"callbell/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// commandMessage: payload, который получает устройство.
type commandMessage struct {
	DeviceID string         `json:"device_id"`
	Command  models.Command `json:"command"`
	IssuedAt time.Time      `json:"issued_at"`
}

// Publisher дублирует команды MOVE/STOP в MQTT, чтобы устройству не нужно было опрашивать /command.
type Publisher struct {
	client       paho.Client
	topicPattern string // e.g. "callbell/{device_id}/command"
	timeout      time.Duration
	now          func() time.Time
}

func NewPublisher(client paho.Client, topicPattern string) *Publisher {
	return &Publisher{
		client:       client,
		topicPattern: topicPattern,
		timeout:      5 * time.Second,
		now:          time.Now,
	}
}

func (p *Publisher) PublishCommand(deviceID string, cmd models.Command) error {
	payload, err := json.Marshal(commandMessage{DeviceID: deviceID, Command: cmd, IssuedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	topic := formatTopic(p.topicPattern, deviceID)

	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
