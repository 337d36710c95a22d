package publish

import (
	"context"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/sirupsen/logrus"
)

// MQTTConfig names the broker and client identity.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	Username string
	Password string

	KeepAlive uint16 // seconds, default 30
}

// MQTTSink publishes over a paho.golang client connection, the way
// tool.go fans decoded values out to a delegate except here there is
// exactly one outbound shape: a topic and a byte payload.
type MQTTSink struct {
	client *paho.Client
	log    *logrus.Entry
}

// DialMQTT connects to cfg.Broker and returns a Sink. The returned Sink
// also exposes Subscribe for the control-ingress set-topic consumer.
func DialMQTT(ctx context.Context, cfg MQTTConfig, log *logrus.Entry) (*MQTTSink, error) {
	conn, err := net.Dial("tcp", cfg.Broker)
	if err != nil {
		return nil, err
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn: conn,
	})

	keepAlive := cfg.KeepAlive
	if keepAlive == 0 {
		keepAlive = 30
	}

	connReq := &paho.Connect{
		KeepAlive:  keepAlive,
		ClientID:   cfg.ClientID,
		CleanStart: true,
		Username:   cfg.Username,
		Password:   []byte(cfg.Password),
	}
	if cfg.Username != "" {
		connReq.UsernameFlag = true
	}
	if cfg.Password != "" {
		connReq.PasswordFlag = true
	}

	if _, err := client.Connect(ctx, connReq); err != nil {
		conn.Close()
		return nil, err
	}

	return &MQTTSink{client: client, log: log}, nil
}

// Publish implements Sink.
func (s *MQTTSink) Publish(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Payload: payload,
	})
	return err
}

// SetHandler is called for every message arriving on a "<...>/set"
// topic: the raw variable name and the textual payload.
type SetHandler func(name, text string)

// Subscribe wires h to every set-topic message for prefix, driving
// control ingress (C8) from the pub/sub side.
func (s *MQTTSink) Subscribe(ctx context.Context, prefix string, h SetHandler) error {
	filter := prefix + "/entity/+/set"

	s.client.Router.RegisterHandler(filter, func(p *paho.Publish) {
		name, ok := parseSetTopic(prefix, p.Topic)
		if !ok {
			return
		}
		h(name, string(p.Payload))
	})

	_, err := s.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: 0},
		},
	})
	return err
}

func parseSetTopic(prefix, topic string) (name string, ok bool) {
	const suffix = "/set"
	base := prefix + "/entity/"
	if len(topic) <= len(base)+len(suffix) {
		return "", false
	}
	if topic[:len(base)] != base || topic[len(topic)-len(suffix):] != suffix {
		return "", false
	}
	return topic[len(base) : len(topic)-len(suffix)], true
}

// Close disconnects the client.
func (s *MQTTSink) Close() error {
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
