// Package realtime fans client change notifications out over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "client-changes:"

const (
	kindRecord = "record"
	kindNote   = "note"
)

// DefaultMaxPayload is used when a broker is built with a non-positive limit.
const DefaultMaxPayload = 64 * 1024

type envelope struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record,omitempty"`
	Note   json.RawMessage `json:"note,omitempty"`
}

// Handlers receive change notifications for one client. Payloads that cannot
// be decoded arrive as empty changes so the receiver falls back to a refetch.
type Handlers struct {
	OnRecord func(domain.RecordChange)
	OnNote   func(domain.NoteChange)
}

// Broker publishes and subscribes to per-client change channels.
type Broker struct {
	rdb        *redis.Client
	maxPayload int
}

// NewBroker wraps an existing Redis client. Record payloads larger than
// maxPayload bytes are published without their answers.
func NewBroker(rdb *redis.Client, maxPayload int) *Broker {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Broker{rdb: rdb, maxPayload: maxPayload}
}

func channel(clientID uuid.UUID) string {
	return channelPrefix + clientID.String()
}

// PublishRecord announces a new or changed answer snapshot.
func (b *Broker) PublishRecord(ctx context.Context, change domain.RecordChange) error {
	if change.New == nil {
		return nil
	}
	body, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if len(body) > b.maxPayload {
		slim := *change.New
		slim.Answers = nil
		slim.Matches = nil
		body, err = json.Marshal(domain.RecordChange{Type: change.Type, New: &slim})
		if err != nil {
			return err
		}
	}
	return b.publish(ctx, change.New.ClientID, envelope{Kind: kindRecord, Record: body})
}

// PublishNote announces an inserted, updated or deleted note.
func (b *Broker) PublishNote(ctx context.Context, change domain.NoteChange) error {
	n, ok := change.Note()
	if !ok {
		return nil
	}
	body, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.publish(ctx, n.ClientID, envelope{Kind: kindNote, Note: body})
}

func (b *Broker) publish(ctx context.Context, clientID uuid.UUID, env envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(clientID), msg).Err()
}

// Subscribe delivers changes of clientID to h until the returned unsubscribe
// is called. Unsubscribe is idempotent and waits for the delivery goroutine
// to exit; it must not be called from inside a handler.
func (b *Broker) Subscribe(ctx context.Context, clientID uuid.UUID, h Handlers) (func(), error) {
	ps := b.rdb.Subscribe(ctx, channel(clientID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	done := make(chan struct{})
	msgs := ps.Channel()
	go func() {
		defer close(done)
		for m := range msgs {
			dispatch(m.Payload, h)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				log.Debug().Err(err).Str("client_id", clientID.String()).Msg("realtime unsubscribe")
			}
			<-done
		})
	}, nil
}

func dispatch(payload string, h Handlers) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Msg("realtime: undecodable message")
		return
	}
	switch env.Kind {
	case kindRecord:
		var rc domain.RecordChange
		if err := json.Unmarshal(env.Record, &rc); err != nil {
			rc = domain.RecordChange{}
		}
		if h.OnRecord != nil {
			h.OnRecord(rc)
		}
	case kindNote:
		var nc domain.NoteChange
		if err := json.Unmarshal(env.Note, &nc); err != nil {
			nc = domain.NoteChange{}
		}
		if h.OnNote != nil {
			h.OnNote(nc)
		}
	default:
		log.Warn().Str("kind", env.Kind).Msg("realtime: unknown message kind")
	}
}
