package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Channel selects the delivery mechanism for a notification.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// Notification is one message addressed to a tenant.
type Notification struct {
	TenantID uuid.UUID
	Channel  Channel
	Subject  string
	Body     string
}

// Gateway accepts notifications for delivery. Accepting means the deliverer
// took responsibility for the attempt, not that the message arrived.
type Gateway interface {
	Notify(ctx context.Context, n Notification) error
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, n Notification) error

func (f GatewayFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NoOp is a Gateway that accepts and discards everything.
func NoOp() Gateway {
	return GatewayFunc(func(ctx context.Context, n Notification) error {
		return nil
	})
}

// Log returns a Gateway that writes notifications to the logger instead of
// delivering them. Development use.
func Log(logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return GatewayFunc(func(ctx context.Context, n Notification) error {
		logger.InfoContext(ctx, "notification",
			slog.String("tenant_id", n.TenantID.String()),
			slog.String("channel", string(n.Channel)),
			slog.String("subject", n.Subject))
		return nil
	})
}

// Multi routes notifications to a per-channel deliverer.
type Multi struct {
	gateways map[Channel]Gateway
}

// NewMulti creates a channel router. Channels without a registered deliverer
// reject with ErrUnsupportedChannel.
func NewMulti() *Multi {
	return &Multi{gateways: make(map[Channel]Gateway)}
}

// Register binds a deliverer to a channel, replacing any previous binding.
func (m *Multi) Register(channel Channel, gw Gateway) *Multi {
	m.gateways[channel] = gw
	return m
}

// Notify implements Gateway.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	gw, ok := m.gateways[n.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, n.Channel)
	}
	return gw.Notify(ctx, n)
}
