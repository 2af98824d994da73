package types

import "time"

// EmailConfig 邮件服务配置
type EmailConfig struct {
	// SMTP 配置
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromAddr  string `mapstructure:"from_addr"` // 发件人地址
	FromName  string `mapstructure:"from_name"` // 发件人名称
	TLSPolicy string `mapstructure:"tls_policy"`

	// 重试配置
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// 超时配置
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

// Email 邮件结构
type Email struct {
	To       []string          // 收件人
	Cc       []string          // 抄送
	Bcc      []string          // 密送
	ReplyTo  string            // 回复地址
	Subject  string            // 主题
	Body     string            // 纯文本正文
	HTMLBody string            // HTML 正文，非空时作为 alternative 附加
	Headers  map[string]string // 自定义邮件头
}

// EmailStatus 邮件发送状态
type EmailStatus struct {
	MessageID string    // 邮件 ID
	SentAt    time.Time // 发送时间
	Attempts  int       // 尝试次数
}
