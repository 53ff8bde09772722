package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/geocoder89/studentportal/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "studentportal:jobs"

// Queue keeps ready jobs in a list, delayed retries in a sorted set scored by
// run time in unix millis, and exhausted jobs in a dead list.
type Queue struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewQueue(c *Client, prefix string) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{rdb: c.Raw(), prefix: prefix, now: time.Now}
}

func (q *Queue) readyKey() string   { return q.prefix + ":ready" }
func (q *Queue) delayedKey() string { return q.prefix + ":delayed" }
func (q *Queue) deadKey() string    { return q.prefix + ":dead" }

// Enqueue makes j available now, or parks it until RunAt.
func (q *Queue) Enqueue(ctx context.Context, j jobs.Job) error {
	if j.RunAt.After(q.now()) {
		return q.Retry(ctx, j, j.RunAt)
	}

	b, err := jobs.Marshal(j)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.readyKey(), b).Err()
}

// Dequeue blocks up to timeout for the oldest ready job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.readyKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jobs.Job{}, jobs.ErrNoJob
		}
		return jobs.Job{}, err
	}

	// res is [key, value]
	raw := res[1]

	j, err := jobs.Unmarshal([]byte(raw))
	if err != nil {
		// keep the evidence instead of dropping it
		if perr := q.rdb.LPush(ctx, q.deadKey(), raw).Err(); perr != nil {
			return jobs.Job{}, fmt.Errorf("%w (dead-letter failed: %v)", err, perr)
		}
		return jobs.Job{}, err
	}
	return j, nil
}

func (q *Queue) Retry(ctx context.Context, j jobs.Job, at time.Time) error {
	j.RunAt = at.UTC()

	b, err := jobs.Marshal(j)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: b,
	}).Err()
}

func (q *Queue) DeadLetter(ctx context.Context, j jobs.Job) error {
	b, err := jobs.Marshal(j)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.deadKey(), b).Err()
}

// promoteScript moves due members from the delayed set to the ready list in
// a single round trip.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

// PromoteDue moves up to batch due retries onto the ready list.
func (q *Queue) PromoteDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}

	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.delayedKey(), q.readyKey()},
		strconv.FormatInt(q.now().UnixMilli(), 10),
		batch,
	).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

type Stats struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	dead := pipe.LLen(ctx, q.deadKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Ready: ready.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
