package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer(nil, logger)
	require.NoError(t, err)
	require.Nil(t, producer)

	producer, err = initKafkaProducer([]string{" ", ""}, logger)
	require.NoError(t, err)
	require.Nil(t, producer)
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer([]string{"127.0.0.1:1"}, logger)
	require.Error(t, err)
	require.Nil(t, producer)
}

func TestNormalizeBrokers(t *testing.T) {
	require.Equal(t,
		[]string{"broker1:9092", "broker2:9092"},
		normalizeBrokers([]string{" broker1:9092", "", "broker2:9092 "}),
	)
	require.Empty(t, normalizeBrokers(nil))
}

func TestCloseKafka_NilProducer(t *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}
