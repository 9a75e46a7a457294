package rabbitmq

import (
	"context"
	"testing"

	"github.com/cuongbtq/learning-hub/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URL(t *testing.T) {
	cfg := &Config{User: "guest", Password: "guest", Host: "mq", Port: 5672, VHost: "/hub"}
	assert.Equal(t, "amqp://guest:guest@mq:5672/hub", cfg.URL())
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{}, logger: logger.NewNop().Logger}

	assert.False(t, c.IsConnected())

	err := c.PublishWithRetry(context.Background(), []byte("{}"), "application/json")
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.Consume("worker")
	require.ErrorIs(t, err, ErrNotConnected)
}
