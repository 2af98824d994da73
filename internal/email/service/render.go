package service

import (
	"bytes"
	"fmt"

	"github.com/kingshare/transfer-backend/internal/email/types"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown 将 Markdown 正文渲染为 HTML，用作邮件的 HTML alternative。
// 原始 HTML 不会被透传（goldmark 默认转义）。
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// NewMarkdownEmail 用 Markdown 正文构建同时带纯文本和 HTML 的邮件
func NewMarkdownEmail(to []string, subject, body string) (*types.Email, error) {
	htmlBody, err := RenderMarkdown(body)
	if err != nil {
		return nil, err
	}
	return &types.Email{To: to, Subject: subject, Body: body, HTMLBody: htmlBody}, nil
}
