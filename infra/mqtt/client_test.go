package mqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/infra/logger"
)

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type fakePaho struct {
	published map[string][]byte
	failTimes int
}

func (f *fakePaho) IsConnected() bool       { return true }
func (f *fakePaho) Connect() paho.Token     { return dummyToken{} }
func (f *fakePaho) Disconnect(quiesce uint) {}
func (f *fakePaho) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	if f.failTimes > 0 {
		f.failTimes--
		return dummyToken{err: assert.AnError}
	}
	if f.published == nil {
		f.published = make(map[string][]byte)
	}
	f.published[topic] = payload.([]byte)
	return dummyToken{}
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "courierbroker", cfg.ClientID)
	assert.Equal(t, "courier/events", cfg.TopicPrefix)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestNewClientOptions_Auth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "t", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
}

func TestNewClientOptions_LWT(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", LWTTopic: "courier/status", LWTPayload: "offline", LWTQoS: 1, LWTRetain: true})
	require.NoError(t, err)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "courier/status", opts.WillTopic)
}

func TestLoadTLSConfig_RequiresAllPaths(t *testing.T) {
	_, err := Config{UseTLS: true, ClientCert: "cert.pem"}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestPublisher_PublishReachesClient(t *testing.T) {
	cli := &fakePaho{}
	p := &PahoPublisher{cli: cli, qos: 1, maxRetries: 1, backoff: time.Millisecond, logger: logger.NopLogger{}}
	require.NoError(t, p.Publish("courier/events/order.created", []byte("{}")))
	assert.Contains(t, cli.published, "courier/events/order.created")
}

func TestPublisher_RetriesThenSucceeds(t *testing.T) {
	cli := &fakePaho{failTimes: 2}
	p := &PahoPublisher{cli: cli, qos: 0, maxRetries: 3, backoff: time.Millisecond, logger: logger.NopLogger{}}
	require.NoError(t, p.Publish("courier/events/order.updated", []byte("{}")))
}

func TestPublisher_ExhaustsRetries(t *testing.T) {
	cli := &fakePaho{failTimes: 10}
	p := &PahoPublisher{cli: cli, qos: 0, maxRetries: 2, backoff: time.Millisecond, logger: logger.NopLogger{}}
	assert.Error(t, p.Publish("courier/events/order.updated", []byte("{}")))
}
