package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/verisend/server/internal/domain/verification"
)

// NotifyChannel is the Postgres channel lifecycle events travel over.
const NotifyChannel = "verisend_events"

// Bridge fans verification events out across processes using Postgres
// LISTEN/NOTIFY. Publish issues pg_notify; every process (main and worker)
// runs a listener that forwards received payloads to its local hub. Local
// broadcast happens only on notification receipt, so an event published on
// this process is not delivered twice.
type Bridge struct {
	pool   *pgxpool.Pool
	hub    *Hub
	logger zerolog.Logger
}

func NewBridge(pool *pgxpool.Pool, hub *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{
		pool:   pool,
		hub:    hub,
		logger: logger.With().Str("component", "ws_bridge").Logger(),
	}
}

// Publish implements verification.Publisher.
func (b *Bridge) Publish(ctx context.Context, event verification.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", NotifyChannel, err)
	}
	return nil
}

// Listen holds a dedicated connection on the notify channel and forwards
// payloads to the hub until ctx is canceled. Connection failures trigger a
// reconnect with backoff.
func (b *Bridge) Listen(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := b.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("listener connection lost, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (b *Bridge) listenOnce(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	b.logger.Info().Str("channel", NotifyChannel).Msg("listening for verification events")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		if !json.Valid([]byte(notification.Payload)) {
			b.logger.Warn().Str("payload", notification.Payload).Msg("discarding malformed event payload")
			continue
		}

		b.hub.Broadcast([]byte(notification.Payload))
	}
}
