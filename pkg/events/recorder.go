package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// Message is a published event as seen on the wire.
type Message struct {
	Channel string
	Payload []byte
}

// Recorder keeps published events in memory. It is used when no Redis is
// configured and in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewRecorder creates a recorder that keeps at most limit messages, the
// oldest being discarded first. A limit <= 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// PublishMinutesProcessed implements the engine publisher.
func (r *Recorder) PublishMinutesProcessed(_ context.Context, res *types.MinutesResult) error {
	return r.record(ChannelMinutesProcessed, NewMinutesProcessedEvent(res))
}

// PublishModelUpdate implements update.Publisher.
func (r *Recorder) PublishModelUpdate(_ context.Context, o update.Outcome) error {
	channel, ok := channelFor(o)
	if !ok {
		return nil
	}
	return r.record(channel, NewModelUpdateEvent(o))
}

// PublishDrift implements update.Publisher.
func (r *Recorder) PublishDrift(_ context.Context, rep update.DriftReport) error {
	return r.record(ChannelModelDriftDetected, NewDriftDetectedEvent(rep))
}

func (r *Recorder) record(channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Channel: channel, Payload: data})
	if r.limit > 0 && len(r.messages) > r.limit {
		r.messages = r.messages[len(r.messages)-r.limit:]
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Channel returns the recorded messages published on channel.
func (r *Recorder) Channel(channel string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}
