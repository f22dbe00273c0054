// Package notify fans project status events out to interested listeners over
// Redis pub/sub. Delivery is best-effort: a failed publish is logged and
// never fails the state transition that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

const channelPrefix = "project:events:" // one channel per project

// Bus is the producer-side contract. All methods are fire-and-forget.
type Bus interface {
	PublishStatus(ctx context.Context, p *domain.Project)
	PublishStageStarted(ctx context.Context, projectID, stage, summary string)
	PublishStageCompleted(ctx context.Context, projectID, stage, summary string)
}

// Subscriber is the consumer-side contract, satisfied by RedisBus.
type Subscriber interface {
	Subscribe(ctx context.Context, projectID string) *redis.PubSub
}

// RedisBus publishes events to the project's Redis channel.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Channel returns the pub/sub channel name for a project.
func Channel(projectID string) string {
	return channelPrefix + projectID
}

func (b *RedisBus) PublishStatus(ctx context.Context, p *domain.Project) {
	b.publish(ctx, p.ID, StatusEvent(p))
}

func (b *RedisBus) PublishStageStarted(ctx context.Context, projectID, stage, summary string) {
	b.publish(ctx, projectID, Event{
		Kind:      KindStageStarted,
		ProjectID: projectID,
		Stage:     stage,
		Summary:   summary,
	})
}

func (b *RedisBus) PublishStageCompleted(ctx context.Context, projectID, stage, summary string) {
	b.publish(ctx, projectID, Event{
		Kind:      KindStageCompleted,
		ProjectID: projectID,
		Stage:     stage,
		Summary:   summary,
	})
}

func (b *RedisBus) publish(ctx context.Context, projectID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[warn] operation=notify_publish project_id=%s error=%v", projectID, err)
		return
	}
	if err := b.client.Publish(ctx, Channel(projectID), payload).Err(); err != nil {
		// Notification is an observability side effect, not part of the
		// transition's atomicity.
		log.Printf("[warn] operation=notify_publish project_id=%s error=%v", projectID, err)
	}
}

// Subscribe opens a subscription for one project's events. The caller owns
// the returned PubSub and must Close it.
func (b *RedisBus) Subscribe(ctx context.Context, projectID string) *redis.PubSub {
	return b.client.Subscribe(ctx, Channel(projectID))
}

// NopBus discards all events. Used where a bus is required but notification
// is not wired (tests, one-off tooling).
type NopBus struct{}

func (NopBus) PublishStatus(context.Context, *domain.Project)                {}
func (NopBus) PublishStageStarted(context.Context, string, string, string)   {}
func (NopBus) PublishStageCompleted(context.Context, string, string, string) {}
