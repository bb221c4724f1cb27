package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/natsclient"
)

// Stream configuration for the processing log.
const (
	DefaultLogStream  = "RAKAN_LOG"
	DefaultLogSubject = "rakan.log"
	defaultLogMaxMsgs = 100_000
	defaultRecentCap  = 1000
)

// JetStreamLogStore appends processing records to a JetStream stream and
// mirrors the most recent entries in memory for cheap reads. The stream is
// the durable record; the in-memory ring only serves Recent.
type JetStreamLogStore struct {
	client  *natsclient.Client
	subject string

	mu     sync.RWMutex
	recent []*event.LogEntry
	cap    int
}

// NewJetStreamLogStore ensures the log stream exists, reads the tail of
// the durable history into the recent ring and mirrors appended entries.
func NewJetStreamLogStore(ctx context.Context, client *natsclient.Client, streamName string) (*JetStreamLogStore, error) {
	if streamName == "" {
		streamName = DefaultLogStream
	}

	stream, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{DefaultLogSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   defaultLogMaxMsgs,
		MaxAge:    30 * 24 * time.Hour,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "JetStreamLogStore", "NewJetStreamLogStore", streamName)
	}

	s := &JetStreamLogStore{
		client:  client,
		subject: DefaultLogSubject,
		cap:     defaultRecentCap,
	}
	if err := s.warm(ctx, stream); err != nil {
		return nil, errors.WrapTransient(err, "JetStreamLogStore", "NewJetStreamLogStore", "read log history")
	}
	return s, nil
}

// warm fills the recent ring from the tail of the durable stream so
// Recent serves history written before this process started.
func (s *JetStreamLogStore) warm(ctx context.Context, stream jetstream.Stream) error {
	info, err := stream.Info(ctx)
	if err != nil {
		return err
	}
	last := info.State.LastSeq
	if last == 0 || info.State.Msgs == 0 {
		return nil
	}

	start := info.State.FirstSeq
	if last >= uint64(s.cap) && last-uint64(s.cap)+1 > start {
		start = last - uint64(s.cap) + 1
	}

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   start,
	})
	if err != nil {
		return err
	}

	batch, err := cons.FetchNoWait(int(last - start + 1))
	if err != nil {
		return err
	}
	for msg := range batch.Messages() {
		entry, err := event.UnmarshalLogEntry(msg.Data())
		if err != nil {
			// Unreadable records stay in the stream but are skipped here.
			continue
		}
		s.recent = append(s.recent, entry)
	}
	return batch.Error()
}

// Append writes entry to the stream and the recent ring, generating a
// log id when unset.
func (s *JetStreamLogStore) Append(ctx context.Context, entry *event.LogEntry) (string, error) {
	if entry == nil {
		return "", errors.WrapInvalid(errors.ErrLogUnavailable, "JetStreamLogStore", "Append", "validate entry")
	}

	copied := *entry
	if copied.LogID == "" {
		copied.LogID = uuid.NewString()
	}

	data, err := copied.Marshal()
	if err != nil {
		return "", errors.WrapInvalid(err, "JetStreamLogStore", "Append", "encode entry")
	}

	if err := s.client.PublishToStream(ctx, s.subject, data); err != nil {
		return "", errors.WrapTransient(err, "JetStreamLogStore", "Append", copied.LogID)
	}

	s.mu.Lock()
	s.recent = append(s.recent, &copied)
	if len(s.recent) > s.cap {
		s.recent = s.recent[len(s.recent)-s.cap:]
	}
	s.mu.Unlock()
	return copied.LogID, nil
}

// Recent returns up to limit mirrored entries, newest first.
func (s *JetStreamLogStore) Recent(_ context.Context, limit int) ([]*event.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*event.LogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		copied := *s.recent[i]
		out = append(out, &copied)
	}
	return out, nil
}
