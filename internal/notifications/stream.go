package notifications

import (
	"context"
	"sync"
	"time"
)

// StreamMessage announces a freshly stored notification to live subscribers.
type StreamMessage struct {
	RecipientWalletAddress string    `json:"-"`
	NotificationID         string    `json:"notification_id"`
	Type                   string    `json:"type"`
	CreatedAt              time.Time `json:"created_at"`
}

// Stream is an in-process fan-out hub keyed by recipient wallet. Slow
// subscribers drop messages rather than block the dispatcher; the inbox
// remains the source of truth.
type Stream struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*streamSubscriber
	nextID      int64
	bufferSize  int
}

type streamSubscriber struct {
	id     int64
	events chan StreamMessage
}

// NewStream constructs the hub.
func NewStream() *Stream {
	return &Stream{
		subscribers: make(map[string]map[int64]*streamSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for the recipient's notifications until the
// context is done.
func (s *Stream) Subscribe(ctx context.Context, recipientWallet string) (<-chan StreamMessage, func()) {
	if recipientWallet == "" {
		ch := make(chan StreamMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &streamSubscriber{
		id:     s.nextSequence(),
		events: make(chan StreamMessage, s.bufferSize),
	}
	s.register(recipientWallet, subscriber)
	cleanup := func() {
		s.unregister(recipientWallet, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.events, cleanup
}

// Publish delivers to current subscribers of the recipient, dropping on full
// buffers.
func (s *Stream) Publish(message StreamMessage) {
	if message.RecipientWalletAddress == "" {
		return
	}
	s.mu.RLock()
	subscribers := s.subscribers[message.RecipientWalletAddress]
	if len(subscribers) == 0 {
		s.mu.RUnlock()
		return
	}
	copies := make([]*streamSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	s.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.events <- message:
		default:
		}
	}
}

func (s *Stream) nextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Stream) register(recipientWallet string, subscriber *streamSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[recipientWallet]; !ok {
		s.subscribers[recipientWallet] = make(map[int64]*streamSubscriber)
	}
	s.subscribers[recipientWallet][subscriber.id] = subscriber
}

func (s *Stream) unregister(recipientWallet string, subscriberID int64) {
	s.mu.Lock()
	subscribers := s.subscribers[recipientWallet]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(s.subscribers, recipientWallet)
		}
	}
	s.mu.Unlock()
}
