package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return &t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return newFakeToken(c.err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Enabled: true, Host: "broker", Port: 1883, QoS: 1}, false},
		{"no host", Config{Enabled: true, Port: 1883}, true},
		{"bad port", Config{Enabled: true, Host: "broker", Port: 0}, true},
		{"bad qos", Config{Enabled: true, Host: "broker", Port: 1883, QoS: 3}, true},
		{"wildcard prefix", Config{Enabled: true, Host: "broker", Port: 1883, TopicPrefix: "scans/#"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr != (err != nil) {
				t.Errorf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfig_BrokerURL(t *testing.T) {
	c := Config{Host: "broker", Port: 8883, UseTLS: true}
	if url := c.BrokerURL(); url != "tls://broker:8883" {
		t.Errorf("unexpected broker URL %s", url)
	}
}

func TestPublisher_PublishSweep(t *testing.T) {
	client := &fakeClient{}
	config := Config{Enabled: true, Host: "broker", Port: 1883, QoS: 1, Retain: true}

	p, err := New(config, "roof", WithClient(client))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	msg := SweepMessage{
		RunID:     "run-1",
		Device:    "roof",
		Sweep:     3,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Bins:      []spectrum.Bin{{Freq: 100, Power: -50}, {Freq: 100.001, Power: -40}},
	}
	if err = p.PublishSweep(context.Background(), &msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(client.messages))
	}

	m := client.messages[0]
	if m.topic != "rtlsdr-scanner/roof/sweep" || m.qos != 1 || !m.retained {
		t.Errorf("unexpected publish %s qos=%d retained=%v", m.topic, m.qos, m.retained)
	}

	var decoded SweepMessage
	if err = json.Unmarshal(m.payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Sweep != 3 || len(decoded.Bins) != 2 || !decoded.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("unexpected payload %+v", decoded)
	}

	p.Close()
	if !client.disconnected {
		t.Error("expected the client to disconnect")
	}
}

func TestPublisher_PublishLevelError(t *testing.T) {
	failure := errors.New("not connected")
	client := &fakeClient{err: failure}

	p, err := New(Config{Enabled: true, Host: "broker", Port: 1883, TopicPrefix: "station"}, "roof", WithClient(client))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	err = p.PublishLevel(context.Background(), &LevelMessage{Freq: 433.92, Power: -12})
	if !errors.Is(err, failure) {
		t.Errorf("expected the publish failure, got %v", err)
	}
	if client.messages[0].topic != "station/roof/level" {
		t.Errorf("unexpected topic %s", client.messages[0].topic)
	}
}
