package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mrz1836/postmark"
)

// EmailConfig holds Postmark credentials and the sender identity.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail          string `env:"BILLING_SENDER_EMAIL,required"`
}

// RecipientResolver maps a tenant to its billing email address. Typically
// backed by the ledger's tenant record.
type RecipientResolver func(ctx context.Context, tenantID uuid.UUID) (string, error)

// EmailGateway delivers notifications through Postmark's transactional API.
type EmailGateway struct {
	client  *postmark.Client
	config  EmailConfig
	resolve RecipientResolver
}

// NewEmailGateway creates a Postmark-backed email deliverer. All credentials
// are required up front so a misconfigured service fails at startup, not at
// first delivery.
func NewEmailGateway(cfg EmailConfig, resolve RecipientResolver) (*EmailGateway, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: recipient resolver is required", ErrInvalidConfig)
	}
	return &EmailGateway{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config:  cfg,
		resolve: resolve,
	}, nil
}

// Notify implements Gateway.
func (g *EmailGateway) Notify(ctx context.Context, n Notification) error {
	to, err := g.resolve(ctx, n.TenantID)
	if err != nil {
		return errors.Join(ErrRecipientUnknown, err)
	}
	if to == "" {
		return fmt.Errorf("%w: tenant %s has no billing email", ErrRecipientUnknown, n.TenantID)
	}

	resp, err := g.client.SendEmail(ctx, postmark.Email{
		From:     g.config.SenderEmail,
		To:       to,
		Subject:  n.Subject,
		TextBody: n.Body,
		Tag:      "billing",
	})
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrDeliveryFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

var _ Gateway = (*EmailGateway)(nil)
