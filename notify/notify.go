// Package notify publishes camera lifecycle events to an MQTT broker.
//
// Messages are JSON.  State changes go to <topic>/state and finished
// captures to <topic>/capture.
package notify

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nasa-jpl/qhylab/qhy"
)

// Client is the part of an mqtt.Client a Publisher uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// StateMsg is published on every state transition
type StateMsg struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Op    string    `json:"op"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// CaptureMsg is published for each frame or burst served
type CaptureMsg struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Bits   int       `json:"bits"`
	Frames int       `json:"frames"`
	CRC    uint32    `json:"crc"`
	Time   time.Time `json:"time"`
}

// Publisher sends camera events to a broker
type Publisher struct {
	Client Client

	// Topic is the root topic
	Topic string

	// QoS is the MQTT quality of service used for every message
	QoS byte

	// Logger receives publish failures.  Defaults to the log package.
	Logger *log.Logger
}

// Dial connects to broker, for example tcp://localhost:1883, and returns a
// Publisher on topic
func Dial(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{Client: c, Topic: topic, QoS: 1}, nil
}

func (p *Publisher) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// publish sends obj as JSON without waiting for the broker.  Failures are
// logged when the token completes.
func (p *Publisher) publish(sub string, obj interface{}) {
	msg, err := json.Marshal(obj)
	if err != nil {
		p.logf("notify: %s", err)
		return
	}
	topic := p.Topic + "/" + sub
	token := p.Client.Publish(topic, p.QoS, false, msg)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.logf("notify: publish to %s: %s", topic, err)
		}
	}()
}

// Observer returns a qhy.Observer that publishes every transition
func (p *Publisher) Observer() qhy.Observer {
	return func(t qhy.Transition) {
		m := StateMsg{From: t.From.String(), To: t.To.String(), Op: t.Op, Time: time.Now()}
		if t.Err != nil {
			m.Error = t.Err.Error()
		}
		p.publish("state", m)
	}
}

// Captured publishes the metadata of frames that were read out
func (p *Publisher) Captured(frames ...*qhy.Image) {
	if len(frames) == 0 {
		return
	}
	f := frames[0]
	p.publish("capture", CaptureMsg{
		Width:  f.Width,
		Height: f.Height,
		Bits:   f.Bits,
		Frames: len(frames),
		CRC:    qhy.DataCRC(frames...),
		Time:   time.Now(),
	})
}
