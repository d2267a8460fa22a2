package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/internal/notify"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// BuildEmailSender selects the staff e-mail provider. It returns the sender,
// the provider actually used and, when that differs from the preference, why.
// The stub sender is used whenever the preferred provider cannot be built.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, loadAWS AWSLoader, logger *logging.Logger) (notify.EmailSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub", "missing config"
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			return notify.NewStubEmailSender(logger), "stub", "SENDGRID_API_KEY is empty"
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger), "sendgrid", ""
	case "ses":
		if loadAWS == nil {
			return notify.NewStubEmailSender(logger), "stub", "aws config unavailable"
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			logger.Warn("failed to load aws config for ses", "error", err)
			return notify.NewStubEmailSender(logger), "stub", "aws config unavailable"
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.EmailFrom,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger), "ses", ""
	case "", "stub":
		return notify.NewStubEmailSender(logger), "stub", ""
	default:
		return notify.NewStubEmailSender(logger), "stub", "unknown provider " + cfg.EmailProvider
	}
}
