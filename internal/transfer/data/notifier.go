package data

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	emailservice "github.com/kingshare/transfer-backend/internal/email/service"
	emailtypes "github.com/kingshare/transfer-backend/internal/email/types"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/workerpool"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// notifySendTimeout 单封通知邮件的投递上限，包含重试
const notifySendTimeout = 2 * time.Minute

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// 正文为 Markdown，发送时同时附带渲染后的 HTML
var mailTemplates = map[biz.NotificationKind]mailTemplate{
	biz.NotifyTransferShared: mustTemplate(
		`{{.Sender}} shared "{{.Title}}" with you`,
		`**{{.Sender}}** shared {{.FileCount}} file(s) with you.
{{if .Message}}
> {{.Message}}
{{end}}
Open the transfer: {{.ShareURL}}

The link expires on {{.ExpiresAt}}.{{if .PasswordProtected}} You will need the password from the sender.{{end}}
`),
	biz.NotifyAccessRequested: mustTemplate(
		`Access request: {{.Title}}`,
		`**{{.Requester}}** asked to download "{{.Title}}".
{{if .RequestMessage}}
> {{.RequestMessage}}
{{end}}
Review pending requests in your dashboard.
`),
	biz.NotifyApprovalDecided: mustTemplate(
		`{{if .Approved}}Access approved{{else}}Access request denied{{end}}: {{.Title}}`,
		`{{if .Approved}}Your request to download "{{.Title}}" was **approved**.

Download it here: {{.ShareURL}}{{else}}Your request to download "{{.Title}}" was **denied**.{{end}}
{{if .ResponseMessage}}
> {{.ResponseMessage}}
{{end}}`),
}

type mailData struct {
	Sender            string
	Title             string
	Message           string
	FileCount         int
	ShareURL          string
	ExpiresAt         string
	PasswordProtected bool
	Requester         string
	RequestMessage    string
	ResponseMessage   string
	Approved          bool
}

// EmailNotifier 通过 worker pool 异步发送通知邮件
type EmailNotifier struct {
	sender        emailservice.Sender
	pool          *workerpool.Pool
	publicBaseURL string
	logger        *logger.Logger
}

var _ biz.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier 创建通知器
func NewEmailNotifier(sender emailservice.Sender, pool *workerpool.Pool, publicBaseURL string, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		sender:        sender,
		pool:          pool,
		publicBaseURL: publicBaseURL,
		logger:        log.Named("notifier"),
	}
}

// Notify 渲染邮件并提交到 worker pool，不等待投递结果
func (n *EmailNotifier) Notify(ctx context.Context, msg *biz.Notification) error {
	email, err := n.render(msg)
	if err != nil {
		return err
	}

	requestID := logger.GetRequestID(ctx)
	return n.pool.Submit(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		defer cancel()

		if _, err := n.sender.SendEmail(sendCtx, email); err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("kind", string(msg.Kind)),
				zap.String("request_id", requestID),
				zap.Error(err))
			return
		}
		n.logger.Debug("notification delivered",
			zap.String("kind", string(msg.Kind)),
			zap.String("request_id", requestID))
	})
}

func (n *EmailNotifier) render(msg *biz.Notification) (*emailtypes.Email, error) {
	tpl, ok := mailTemplates[msg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	if msg.Transfer == nil {
		return nil, fmt.Errorf("notification %q has no transfer", msg.Kind)
	}

	d := n.data(msg)

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, d); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, d); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	email, err := emailservice.NewMarkdownEmail([]string{msg.To}, subject.String(), body.String())
	if err != nil {
		return nil, err
	}
	if msg.Kind == biz.NotifyTransferShared && msg.Transfer.SenderEmail != "" {
		email.ReplyTo = msg.Transfer.SenderEmail
	}
	return email, nil
}

func (n *EmailNotifier) data(msg *biz.Notification) mailData {
	t := msg.Transfer
	d := mailData{
		Sender:            t.SenderEmail,
		Title:             t.Title,
		Message:           t.Message,
		FileCount:         len(t.Files),
		ShareURL:          biz.ShareURL(n.publicBaseURL, t.ShareToken),
		ExpiresAt:         t.ExpirationAt.UTC().Format("2006-01-02 15:04 MST"),
		PasswordProtected: t.HasPassword(),
	}
	if d.Sender == "" {
		d.Sender = "Someone"
	}
	if d.Title == "" && len(t.Files) > 0 {
		d.Title = t.Files[0].FileName
	}
	if a := msg.Approval; a != nil {
		d.Requester = a.RequesterEmail
		d.RequestMessage = a.RequestMessage
		d.ResponseMessage = a.ResponseMessage
		d.Approved = a.Status == biz.ApprovalApproved
	}
	return d
}

// LogNotifier 未配置邮件时使用，只记录日志
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, msg *biz.Notification) error {
	fields := []zap.Field{zap.String("kind", string(msg.Kind))}
	if msg.Transfer != nil {
		fields = append(fields, zap.String("transfer_id", msg.Transfer.ID))
	}
	n.logger.Info("email disabled, notification skipped", fields...)
	return nil
}
