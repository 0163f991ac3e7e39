package email

import (
	"context"

	"go.uber.org/zap"
)

const TemplateWelcome = "welcome"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error
}

// WelcomeData feeds the welcome template.
type WelcomeData struct {
	CompanyName   string
	Subdomain     string
	DashboardURL  string
	OnboardingURL string
}

// NoOpProvider logs instead of sending. Used when SMTP is not configured.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Info("email suppressed", zap.Int("recipients", len(to)), zap.String("subject", subject))
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	if _, err := render(templateName, data); err != nil {
		return err
	}
	p.log.Info("templated email suppressed", zap.Int("recipients", len(to)), zap.String("template", templateName))
	return nil
}
