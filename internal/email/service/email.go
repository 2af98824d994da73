package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingshare/transfer-backend/internal/email/types"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Sender 发送邮件的抽象，业务层只依赖它
type Sender interface {
	SendEmail(ctx context.Context, email *types.Email) (*types.EmailStatus, error)
}

// sendFunc 实际投递，测试中替换
type sendFunc func(ctx context.Context, client *mail.Client, msg *mail.Msg) error

// EmailService SMTP 邮件服务
type EmailService struct {
	config *types.EmailConfig
	logger *logger.Logger
	send   sendFunc
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *types.EmailConfig, log *logger.Logger) (*EmailService, error) {
	if cfg == nil {
		return nil, errors.New("email config is required")
	}
	if cfg.SMTPHost == "" || cfg.FromAddr == "" {
		return nil, errors.New("smtp host and from address are required")
	}

	// 设置默认值
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &EmailService{
		config: cfg,
		logger: log.Named("email"),
		send: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

// SendEmail 发送邮件，失败按配置重试
func (s *EmailService) SendEmail(ctx context.Context, email *types.Email) (*types.EmailStatus, error) {
	if email == nil {
		return nil, errors.New("email is required")
	}
	if err := validateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	client, err := s.createClient()
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	defer client.Close()

	msg, err := s.buildMessage(email)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
		err := s.send(sendCtx, client, msg)
		cancel()

		if err == nil {
			status := &types.EmailStatus{SentAt: time.Now(), Attempts: attempt}
			if ids := msg.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
				status.MessageID = ids[0]
			}
			return status, nil
		}

		lastErr = err
		s.logger.Warn("send email failed",
			zap.Int("attempt", attempt),
			zap.Strings("to", email.To),
			zap.Error(err))

		if attempt < s.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RetryInterval):
			}
		}
	}

	return nil, fmt.Errorf("failed to send email after %d attempts: %w", s.config.MaxRetries, lastErr)
}

// createClient 创建邮件客户端，不建立连接
func (s *EmailService) createClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.config.SMTPPort),
		mail.WithTimeout(s.config.ConnectTimeout),
		mail.WithTLSPolicy(tlsPolicy(s.config.TLSPolicy)),
	}

	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	} else {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthNoAuth))
	}

	client, err := mail.NewClient(s.config.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return client, nil
}

func tlsPolicy(p string) mail.TLSPolicy {
	switch p {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// buildMessage 构建邮件消息
func (s *EmailService) buildMessage(email *types.Email) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.From(formatAddress(s.config.FromAddr, s.config.FromName)); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(email.To...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	if len(email.Cc) > 0 {
		if err := msg.Cc(email.Cc...); err != nil {
			return nil, fmt.Errorf("set cc: %w", err)
		}
	}
	if len(email.Bcc) > 0 {
		if err := msg.Bcc(email.Bcc...); err != nil {
			return nil, fmt.Errorf("set bcc: %w", err)
		}
	}
	if email.ReplyTo != "" {
		if err := msg.ReplyTo(email.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to: %w", err)
		}
	}

	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	if email.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTMLBody)
	}

	for key, value := range email.Headers {
		msg.SetGenHeader(mail.Header(key), value)
	}

	msg.SetGenHeader(mail.HeaderXMailer, "KingShare")
	msg.SetDate()
	msg.SetMessageID()

	return msg, nil
}

// validateEmail 验证邮件
func validateEmail(email *types.Email) error {
	if len(email.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	if email.Subject == "" {
		return errors.New("subject is required")
	}
	if email.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

// formatAddress 格式化邮件地址
func formatAddress(addr, name string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%q <%s>", name, addr)
}
