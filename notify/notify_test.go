package notify_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nasa-jpl/qhylab/notify"
	"github.com/nasa-jpl/qhylab/qhy"
)

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message{topic, payload.([]byte)})
	return newToken(f.err)
}

func TestObserverPublishesTransitions(t *testing.T) {
	fc := &fakeClient{}
	p := &notify.Publisher{Client: fc, Topic: "lab/qhy"}
	sim := qhy.NewSimulator()
	sim.Chip = qhy.Chip{WidthMM: 1, HeightMM: 1, WidthPx: 8, HeightPx: 8, MaxX: 8, MaxY: 8, BitsPerPixel: 16}
	cam, err := qhy.Open(sim, 0, qhy.WithObserver(p.Observer()))
	if err != nil {
		t.Fatal(err)
	}
	cam.Close()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) < 2 {
		t.Fatalf("expected open and close transitions, got %d messages", len(fc.sent))
	}
	last := fc.sent[len(fc.sent)-1]
	if last.topic != "lab/qhy/state" {
		t.Errorf("expected topic lab/qhy/state got %s", last.topic)
	}
	msg := notify.StateMsg{}
	if err := json.Unmarshal(last.payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.From != "Idle" || msg.To != "Closed" {
		t.Errorf("expected Idle -> Closed got %s -> %s", msg.From, msg.To)
	}
}

func TestCaptured(t *testing.T) {
	fc := &fakeClient{err: errors.New("broker went away")}
	p := &notify.Publisher{Client: fc, Topic: "lab/qhy"}
	img := &qhy.Image{Width: 2, Height: 1, Bits: 16, Pix: []uint16{1, 2}}
	p.Captured(img, img)
	p.Captured()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 1 {
		t.Fatalf("expected one message got %d", len(fc.sent))
	}
	msg := notify.CaptureMsg{}
	if err := json.Unmarshal(fc.sent[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Frames != 2 || msg.CRC != qhy.DataCRC(img, img) {
		t.Errorf("expected 2 frames with matching crc, got %+v", msg)
	}
}
