// Package logqueue keeps the ordered log of an in-progress run in redis. The
// queue is append-only: each entry is an [index, timestamp, text] triple, the
// index establishing the total order used by snapshots. On a terminal state
// the queue is flushed to the file store as the run's log file and removed.
package logqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

const (
	// flushLockTTL bounds how long a crashed flusher can block a run's log.
	flushLockTTL = 60 * time.Second

	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Entry is one log line with its queue position.
type Entry struct {
	Index     int64
	Timestamp time.Time
	Text      string
}

// MarshalJSON renders the wire form [index, timestamp, text].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.Index, e.Timestamp.UTC().Format(timestampLayout), e.Text})
}

// UnmarshalJSON parses the wire form [index, timestamp, text].
func (e *Entry) UnmarshalJSON(data []byte) error {
	var triple [3]json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if err := json.Unmarshal(triple[0], &e.Index); err != nil {
		return fmt.Errorf("invalid log entry index: %w", err)
	}
	var ts string
	if err := json.Unmarshal(triple[1], &ts); err != nil {
		return fmt.Errorf("invalid log entry timestamp: %w", err)
	}
	parsed, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return fmt.Errorf("invalid log entry timestamp: %w", err)
	}
	e.Timestamp = parsed
	return json.Unmarshal(triple[2], &e.Text)
}

// Queue is the per-run log buffer.
type Queue struct {
	rdb       redis.UniversalClient
	files     *filestore.Service
	refs      store.FileStore
	locks     lock.Locker
	flushWait time.Duration
	now       func() time.Time
}

// New wires a Queue. flushWait is the bounded wait a forced flush spends on
// the per-run flush lock before proceeding anyway.
func New(rdb redis.UniversalClient, files *filestore.Service, refs store.FileStore, locks lock.Locker, flushWait time.Duration) *Queue {
	return &Queue{
		rdb:       rdb,
		files:     files,
		refs:      refs,
		locks:     locks,
		flushWait: flushWait,
		now:       time.Now,
	}
}

func listKey(runSUUID string) string    { return "run:log:" + runSUUID }
func counterKey(runSUUID string) string { return "run:log:" + runSUUID + ":idx" }
func flushKey(runSUUID string) string   { return "run:logflush:" + runSUUID }

// Append adds one line to the run's queue and returns its entry. A nil
// timestamp means now.
func (q *Queue) Append(ctx context.Context, runSUUID, text string, timestamp *time.Time) (Entry, error) {
	ts := q.now().UTC()
	if timestamp != nil {
		ts = timestamp.UTC()
	}

	// The counter survives independently of the list so indexes never repeat,
	// even when an append crashes between the two writes.
	index, err := q.rdb.Incr(ctx, counterKey(runSUUID)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to advance log index: %w", err)
	}

	entry := Entry{Index: index, Timestamp: ts, Text: text}
	payload, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, err
	}
	if err := q.rdb.RPush(ctx, listKey(runSUUID), payload).Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to append log entry: %w", err)
	}
	telemetry.GetMetrics().LogLinesAppendedTotal.Add(ctx, 1)
	return entry, nil
}

// Snapshot returns the [offset, offset+limit) slice of the queue plus the
// total entry count. limit -1 returns everything from offset onward.
func (q *Queue) Snapshot(ctx context.Context, runSUUID string, offset, limit int64) ([]Entry, int64, error) {
	if offset < 0 {
		offset = 0
	}
	total, err := q.rdb.LLen(ctx, listKey(runSUUID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read log length: %w", err)
	}

	end := int64(-1)
	if limit >= 0 {
		end = offset + limit - 1
		if end < offset {
			return nil, total, nil
		}
	}
	raw, err := q.rdb.LRange(ctx, listKey(runSUUID), offset, end).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read log entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, 0, fmt.Errorf("corrupt log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

// Tail returns the last n entries.
func (q *Queue) Tail(ctx context.Context, runSUUID string, n int64) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := q.rdb.LRange(ctx, listKey(runSUUID), -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log tail: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("corrupt log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Flush serializes the whole queue as JSON and stores it as a log file owned
// by the run. Flushes serialize on a per-run lock: without force a concurrent
// flush fails fast with lock.ErrLocked; with force the flush waits up to the
// configured window and then proceeds regardless, so a stuck lock cannot
// deadlock a terminal sweep.
func (q *Queue) Flush(ctx context.Context, run *models.Run, force bool) (*models.File, error) {
	var release lock.Release
	var err error
	if force {
		release, err = q.locks.Acquire(ctx, flushKey(run.SUUID), flushLockTTL, q.flushWait)
		if err != nil {
			log.Warn().Str("run", run.SUUID).Msg("Forced log flush proceeding without lock")
			release = func() {}
		}
	} else {
		release, err = q.locks.TryAcquire(ctx, flushKey(run.SUUID), flushLockTTL)
		if err != nil {
			return nil, err
		}
	}
	defer release()

	entries, _, err := q.Snapshot(ctx, run.SUUID, 0, -1)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	ref, err := q.refs.ObjectReferenceFor(ctx, models.OwnerRun, run.UUID, run.SUUID)
	if err != nil {
		return nil, err
	}
	f, err := q.files.WriteDirect(ctx, filestore.Slot{
		Owner:       ref,
		Name:        "log.json",
		ContentType: "application/json",
	}, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to store log file: %w", err)
	}
	log.Info().Str("run", run.SUUID).Int("entries", len(entries)).Msg("Flushed run log")
	telemetry.GetMetrics().LogFlushesTotal.Add(ctx, 1)
	return f, nil
}

// Remove discards the queue. Called after a successful terminal flush.
func (q *Queue) Remove(ctx context.Context, runSUUID string) error {
	if err := q.rdb.Del(ctx, listKey(runSUUID), counterKey(runSUUID)).Err(); err != nil {
		return fmt.Errorf("failed to remove log queue: %w", err)
	}
	return nil
}
