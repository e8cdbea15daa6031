//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// These tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, id string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = id
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// fanoutBody mirrors the JSON the journal publishes.
type fanoutBody struct {
	Subject string            `json:"subject"`
	Headers map[string]string `json:"headers"`
	Event   json.RawMessage   `json:"event"`
}

func TestIntegration_JournalFanout(t *testing.T) {
	c := connectTest(t, "netfleet-int-fanout")

	var mu sync.Mutex
	received := map[string]fanoutBody{}
	done := make(chan struct{}, 4)

	// An outside observer with its own connection.
	observer := pahomqtt.NewClient(buildClientOptions(testConfig(), "netfleet-int-observer"))
	if token := observer.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer Connect() error = %v", token.Error())
	}
	t.Cleanup(func() { observer.Disconnect(100) })
	token := observer.Subscribe("netfleet/device/+", 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		var msg fanoutBody
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			t.Errorf("fan-out body: %v", err)
			return
		}
		mu.Lock()
		received[m.Topic()] = msg
		mu.Unlock()
		done <- struct{}{}
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer Subscribe() error = %v", token.Error())
	}

	store, err := journal.NewMemoryStore(journal.DefaultConfig(),
		journal.WithPublisher(c, 1),
		journal.WithTopics(c.Topics().Event),
	)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	_, envs, err := device.Discover(event.NewMetadata(), network.MustParseMAC("00:11:22:33:44:55"), device.TypeSwitch, nil, "")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if err := store.Append(context.Background(), envs); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fan-out message")
	}
	mu.Lock()
	defer mu.Unlock()
	msg, ok := received["netfleet/device/device_discovered"]
	if !ok {
		t.Fatalf("received topics = %v", received)
	}
	if msg.Subject == "" || len(msg.Headers) == 0 || len(msg.Event) == 0 {
		t.Errorf("fan-out body incomplete: %+v", msg)
	}
}
