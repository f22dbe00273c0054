package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task is one unit of work: a single asynchronous dispatch of one stage for
// one project.
type Task struct {
	Stage     Stage  `json:"stage"`
	ProjectID string `json:"project_id"`
}

// Queue hands units of work to the worker pool. Delivery is at-least-once;
// handlers are idempotent under re-delivery (their precondition check
// doubles as a "have I already done this" check).
type Queue interface {
	Enqueue(ctx context.Context, stage Stage, projectID string) error
}

// RedisQueue is the production queue: LPUSH to enqueue, BRPOP to consume.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "pipeline:tasks"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, stage Stage, projectID string) error {
	payload, err := json.Marshal(Task{Stage: stage, ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", stage, projectID, err)
	}
	return nil
}

// Consume blocks on the queue and feeds tasks to a pool of `concurrency`
// workers until ctx is cancelled. Each worker runs one task at a time.
func (q *RedisQueue) Consume(ctx context.Context, runner *Runner, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	tasks := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if err := runner.Run(ctx, t.Stage, t.ProjectID); err != nil {
					log.Printf("[error] operation=run_stage stage=%s project_id=%s error=%v", t.Stage, t.ProjectID, err)
				}
			}
		}()
	}

	for {
		res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			if errors.Is(err, redis.Nil) {
				continue // timeout, poll again
			}
			log.Printf("[warn] operation=queue_pop error=%v", err)
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			log.Printf("[warn] operation=queue_decode error=%v payload=%q", err, res[1])
			continue
		}
		select {
		case tasks <- t:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(tasks)
	wg.Wait()
}

// MemoryQueue executes tasks on an in-process worker pool. It backs the
// single-binary mode and tests; Start must be called before Enqueue is used.
type MemoryQueue struct {
	runner *Runner
	tasks  chan Task
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(chan Task, 256)}
}

// Bind attaches the runner. Split from the constructor because the runner
// itself needs a Queue to chain stages.
func (q *MemoryQueue) Bind(runner *Runner) {
	q.runner = runner
}

func (q *MemoryQueue) Enqueue(ctx context.Context, stage Stage, projectID string) error {
	select {
	case q.tasks <- Task{Stage: stage, ProjectID: projectID}:
		return nil
	default:
		return fmt.Errorf("task queue full")
	}
}

// Start launches the worker pool. Workers drain remaining tasks and exit
// when ctx is cancelled.
func (q *MemoryQueue) Start(ctx context.Context, concurrency int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case t := <-q.tasks:
					if err := q.runner.Run(ctx, t.Stage, t.ProjectID); err != nil {
						log.Printf("[error] operation=run_stage stage=%s project_id=%s error=%v", t.Stage, t.ProjectID, err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (q *MemoryQueue) Wait() {
	q.wg.Wait()
}
