package run

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/askanna-io/askanna-core/internal/models"
)

// DispatchStream is the redis stream the worker fleet consumes.
const DispatchStream = "run:dispatch"

// Dispatcher hands a freshly created run to the worker fleet.
type Dispatcher interface {
	DispatchRun(ctx context.Context, run *models.Run) error
}

// RedisDispatcher appends dispatch messages to a redis stream. Workers read
// with consumer groups, so a message is handled once even with many workers.
type RedisDispatcher struct {
	rdb redis.UniversalClient
}

// NewRedisDispatcher wires the stream producer.
func NewRedisDispatcher(rdb redis.UniversalClient) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb}
}

func (d *RedisDispatcher) DispatchRun(ctx context.Context, run *models.Run) error {
	err := d.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DispatchStream,
		Values: map[string]interface{}{
			"run_uuid":  run.UUID.String(),
			"run_suuid": run.SUUID,
			"job_uuid":  run.JobUUID.String(),
			"trigger":   string(run.Trigger),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dispatch run: %w", err)
	}
	return nil
}
