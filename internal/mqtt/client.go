package mqtt

import (
	"fmt"
	"time"

	"callbell/internal/logs"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewClient connects to the broker. Reconnects are handled by paho.
func NewClient(config ClientConfig) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOnConnectHandler(func(paho.Client) {
		logs.Logger.Info("mqtt: connection established")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logs.Logger.Warnf("mqtt: connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", config.Broker, token.Error())
	}
	if !client.IsConnected() {
		return nil, fmt.Errorf("connect to mqtt broker %s: timeout", config.Broker)
	}
	logs.Logger.Infof("mqtt: connected to %s", config.Broker)
	return client, nil
}
