// Package channels holds the SMS and email transports used by the dispatcher.
package channels

import (
	"context"
	"regexp"
	"strings"
)

// Result is what a transport reports for an accepted message.
type Result struct {
	ProviderRef string
	Cost        *float64
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) (*Result, error)
}

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) (*Result, error)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	blockBreakPattern = regexp.MustCompile(`(?i)</p>|<br\s*/?>|</li>`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// PlainText derives the text/plain part of an HTML body.
func PlainText(html string) string {
	s := blockBreakPattern.ReplaceAllString(html, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">").Replace(s)
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// WrapHTML places a rendered body in the shared email layout.
func WrapHTML(subject, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"UTF-8\"><title>")
	b.WriteString(subject)
	b.WriteString("</title></head><body style=\"font-family:Arial,sans-serif;color:#222;max-width:600px;margin:0 auto\">")
	b.WriteString(body)
	b.WriteString("<hr><p style=\"font-size:12px;color:#777\">ADR Pomorze</p></body></html>")
	return b.String()
}
