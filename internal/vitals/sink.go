package vitals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/observability"
)

// MQTTSink publishes each sample as JSON on a single topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	observability.Logger().Warn("mqtt connection lost", "error", err)
}

func NewMQTTSink(o MQTTOptions) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) { observability.Logger().Info("connected to mqtt broker", "broker", o.Broker) }
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}
	return &MQTTSink{client: client, topic: o.Topic}, nil
}

func (s *MQTTSink) Publish(ctx context.Context, v domain.VitalSample) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", s.topic)
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

// KafkaSink produces each sample as JSON, keyed by the sample's unix time.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	// Delivery reports must be drained or the events channel fills up.
	go func() {
		for ev := range p.Events() {
			if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				observability.Logger().Warn("kafka delivery failed", "topic", topic, "error", m.TopicPartition.Error)
			}
		}
	}()

	return &KafkaSink{producer: p, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, v domain.VitalSample) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(fmt.Sprintf("%d", v.Timestamp.Unix())),
		Value:          payload,
	}, nil)
}

func (s *KafkaSink) Close() error {
	if remaining := s.producer.Flush(5000); remaining > 0 {
		s.producer.Close()
		return fmt.Errorf("kafka: %d samples not delivered before close", remaining)
	}
	s.producer.Close()
	return nil
}
