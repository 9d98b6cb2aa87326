package kafka

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/tixgo/tix-booking/config"
	"github.com/tixgo/tix-booking/pkg/applogger"
)

// NewProducer builds a confluent kafka producer from the application config.
func NewProducer() *kafka.Producer {
	logger := applogger.GetLogrus()
	c := config.Get()

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": c.Kafka.BootstrapServers,
		"client.id":         c.Kafka.ClientID,
		"acks":              "all",
	})
	if err != nil {
		logger.WithError(err).Fatal("unable to create kafka producer")
	}

	return producer
}
