/*-------------------------------------------------------------------------
 *
 * email.go
 *    Email notification service
 *
 * Provides SMTP-based delivery of review and approval notifications.
 * Lifecycle events that need a human in the loop are rendered into
 * plain-text emails for the configured recipients.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/notifications/email.go
 *
 *-------------------------------------------------------------------------
 */

package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
)

/* EmailService provides email notification capabilities */
type EmailService struct {
	smtpHost     string
	smtpPort     int
	smtpUser     string
	smtpPassword string
	smtpFrom     string
	enabled      bool
}

/* NewEmailService creates a new email service */
func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, smtpFrom string) *EmailService {
	return &EmailService{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		smtpFrom:     smtpFrom,
		enabled:      smtpHost != "" && smtpPort > 0,
	}
}

/* IsEnabled returns whether email delivery is configured */
func (e *EmailService) IsEnabled() bool {
	return e.enabled
}

/* SendEmail sends a plain-text email notification */
func (e *EmailService) SendEmail(ctx context.Context, to, subject, body string) error {
	if !e.enabled {
		return fmt.Errorf("email service not configured")
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	msg := fmt.Sprintf("From: %s\r\n", e.smtpFrom)
	msg += fmt.Sprintf("To: %s\r\n", to)
	msg += fmt.Sprintf("Subject: %s\r\n", subject)
	msg += "\r\n"
	msg += body

	var auth smtp.Auth
	if e.smtpUser != "" {
		auth = smtp.PlainAuth("", e.smtpUser, e.smtpPassword, e.smtpHost)
	}

	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)
	if err := smtp.SendMail(addr, auth, e.smtpFrom, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("email send failed: to='%s', subject='%s', error=%w", to, subject, err)
	}

	return nil
}

/* FormatEventEmail renders a lifecycle event into an email subject and
 * body. Event data keys are listed sorted so messages are stable. */
func FormatEventEmail(eventType string, data map[string]interface{}) (string, string) {
	var subject string
	switch eventType {
	case "review.requested":
		subject = "Human review required"
	case "approval.requested":
		subject = "Approval required"
	case "approval.escalated":
		subject = "Approval escalated"
	case "execution.failed":
		subject = "Workflow execution failed"
	default:
		subject = "Workflow notification"
	}
	if executionID, ok := data["execution_id"].(string); ok {
		subject = fmt.Sprintf("%s: execution %s", subject, executionID)
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var body strings.Builder
	body.WriteString(fmt.Sprintf("Event: %s\r\n", eventType))
	for _, key := range keys {
		body.WriteString(fmt.Sprintf("%s: %v\r\n", key, data[key]))
	}
	return subject, body.String()
}
