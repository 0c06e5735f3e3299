package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrConnect is returned by Dial when the broker cannot be reached. Per
// spec.md §7 this is a fatal, process-ending condition at startup.
var ErrConnect = errors.New("bus: mqtt connect failed")

const (
	defaultHost = "localhost"
	defaultPort = 1883
	clientID    = "dagd"
	connectWait = 10 * time.Second
)

// qosAck matches the original's qos_ack (at-least-once), used for every
// subscription and for the retained status publish.
const qosAck = 1

// MQTT implements Bus against an MQTT broker using paho.mqtt.golang, the
// same publish/subscribe semantics and topic layout the original daemon
// spoke through libmosquitto. Unlike mosquitto_loop (which both reads the
// socket and dispatches callbacks), paho dispatches incoming messages on
// its own goroutine; Poll only reads from a channel that handler feeds,
// keeping the same "single logical thread acts on events" contract the
// rest of dagd relies on -- nothing outside this file ever touches the
// paho client concurrently with Poll's caller.
type MQTT struct {
	client   mqtt.Client
	incoming chan Message
}

// Dial connects to broker ("host[:port]", empty for localhost:1883) and
// subscribes to every topic dagd needs. limitSubscriptions mirrors the
// original's just_one mode: only the shutdown topic is subscribed, since a
// one-shot run never reacts to epoch or hold notifications.
func Dial(broker string, limitSubscriptions bool) (*MQTT, error) {
	host, port, err := splitBroker(broker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	incoming := make(chan Message, 256)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		incoming <- Message{Topic: msg.Topic(), Payload: string(msg.Payload())}
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectWait) {
		return nil, fmt.Errorf("%w: timed out connecting to %s:%d", ErrConnect, host, port)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	m := &MQTT{client: client, incoming: incoming}

	if err := m.subscribe(TopicShutdown); err != nil {
		return nil, err
	}

	if limitSubscriptions {
		return m, nil
	}

	topics := []string{
		TopicEpoch, TopicSlot0Epoch, TopicSlot1Epoch,
		TopicSlot0State, TopicSlot1State,
		TopicRunning, TopicRunning0, TopicRunning1,
	}
	for _, t := range topics {
		if err := m.subscribe(t); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *MQTT) subscribe(topic string) error {
	token := m.client.Subscribe(topic, qosAck, nil)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrConnect, topic, err)
	}

	return nil
}

// Publish sends payload on topic. The status topic is published with
// retain=true so a subscriber that connects later immediately sees the
// last known cache state.
func (m *MQTT) Publish(ctx context.Context, topic, payload string, retained bool) error {
	token := m.client.Publish(topic, qosAck, retained, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}

	return nil
}

// Poll drains whatever has already arrived (wait<=0) or blocks up to wait
// for the first message and then drains anything else already queued.
func (m *MQTT) Poll(ctx context.Context, wait time.Duration) ([]Message, error) {
	if wait <= 0 {
		return m.drainNonBlocking(), nil
	}

	select {
	case msg := <-m.incoming:
		out := append([]Message{msg}, m.drainNonBlocking()...)

		return out, nil
	case <-time.After(wait):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MQTT) drainNonBlocking() []Message {
	var out []Message

	for {
		select {
		case msg := <-m.incoming:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// publishes to flush.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)

	return nil
}

func splitBroker(broker string) (string, int, error) {
	if broker == "" {
		return defaultHost, defaultPort, nil
	}

	host, portStr, found := strings.Cut(broker, ":")
	if !found {
		return host, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}

	return host, port, nil
}

var _ Bus = (*MQTT)(nil)
