// Package kafka streams cache evictions to a Kafka topic. Plug
// Publisher.OnEvict into cache.Options.OnEvict and run Publisher.Run in a
// goroutine.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/IvanBrykalov/evictcache/cache"
)

// DefaultQueueSize bounds events waiting for the producer.
const DefaultQueueSize = 1024

// Event is the JSON payload of one eviction.
type Event struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Reason string          `json:"reason"`
	At     time.Time       `json:"at"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Options configures a Publisher.
type Options[V any] struct {
	// Topic receives the events. Required.
	Topic string
	// QueueSize is the buffer between OnEvict and the producer
	// (0 => DefaultQueueSize). A full queue drops events.
	QueueSize int
	// EncodeValue, when set, embeds the evicted value in the event.
	EncodeValue func(V) ([]byte, error)
}

// Publisher turns evictions into Kafka messages keyed by the cache key.
type Publisher[K comparable, V any] struct {
	producer sarama.AsyncProducer
	opt      Options[V]
	queue    chan *sarama.ProducerMessage
	dropped  atomic.Uint64
}

// NewAsyncProducer builds a producer suited to Publisher: errors are
// returned on Errors(), successes are not.
func NewAsyncProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	p, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}
	return p, nil
}

// NewPublisher wraps producer. It panics if opt.Topic is empty.
func NewPublisher[K comparable, V any](producer sarama.AsyncProducer, opt Options[V]) *Publisher[K, V] {
	if opt.Topic == "" {
		panic("kafka: Topic must be set")
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = DefaultQueueSize
	}
	return &Publisher[K, V]{
		producer: producer,
		opt:      opt,
		queue:    make(chan *sarama.ProducerMessage, opt.QueueSize),
	}
}

// OnEvict matches cache.Options.OnEvict. It runs under a shard lock, so it
// never blocks: when the queue is full the event is dropped and counted.
func (p *Publisher[K, V]) OnEvict(k K, v V, reason cache.EvictReason) {
	ev := Event{
		ID:     uuid.NewString(),
		Key:    fmt.Sprint(k),
		Reason: reason.String(),
		At:     time.Now().UTC(),
	}
	if p.opt.EncodeValue != nil {
		raw, err := p.opt.EncodeValue(v)
		if err != nil {
			log.Printf("kafka: encode value for key %s: %v", ev.Key, err)
		} else {
			ev.Value = raw
		}
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("kafka: marshal event for key %s: %v", ev.Key, err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.opt.Topic,
		Key:       sarama.StringEncoder(ev.Key),
		Value:     sarama.ByteEncoder(body),
		Timestamp: ev.At,
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher[K, V]) Dropped() uint64 { return p.dropped.Load() }

// Run forwards queued events to the producer and logs producer errors
// until ctx is done. On the way out it hands whatever is still queued to
// the producer without blocking; what the producer cannot take is counted
// in Dropped.
func (p *Publisher[K, V]) Run(ctx context.Context) {
	errs := p.producer.Errors()
	for {
		select {
		case <-ctx.Done():
			p.flush(nil)
			return
		case msg := <-p.queue:
			select {
			case p.producer.Input() <- msg:
			case <-ctx.Done():
				p.flush(msg)
				return
			}
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("kafka: deliver event to %s: %v", p.opt.Topic, perr.Err)
		}
	}
}

func (p *Publisher[K, V]) flush(pending *sarama.ProducerMessage) {
	if pending != nil {
		p.offer(pending)
	}
	for {
		select {
		case msg := <-p.queue:
			p.offer(msg)
		default:
			return
		}
	}
}

func (p *Publisher[K, V]) offer(msg *sarama.ProducerMessage) {
	select {
	case p.producer.Input() <- msg:
	default:
		p.dropped.Add(1)
	}
}

// Close closes the producer, which delivers what Run handed over. Call it
// after Run has returned; events still queued at that point are counted in
// Dropped.
func (p *Publisher[K, V]) Close() error {
	for {
		select {
		case <-p.queue:
			p.dropped.Add(1)
		default:
			return p.producer.Close()
		}
	}
}
