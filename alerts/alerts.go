// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package alerts publishes security alerts raised by the sensitive-data
// scanner. Delivery is fire-and-forget: publisher failures are logged and
// never surface to the request that raised the alert.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/dynamo-works/claude-engine/scanner"
	"github.com/dynamo-works/claude-engine/shared/logger"
)

// AlertContext identifies the request that raised the alert
type AlertContext struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	Route     string `json:"route"`
}

// AlertFinding is the redacted view of one scanner finding carried in an
// alert. Raw values never leave the engine.
type AlertFinding struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	RedactedValue string `json:"redactedValue"`
}

// Alert is one security notification
type Alert struct {
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Context   AlertContext   `json:"context"`
	Findings  []AlertFinding `json:"findings"`
}

// NewSensitiveDataAlert builds an alert from scan findings. Severity is
// high when any finding is high, medium otherwise.
func NewSensitiveDataAlert(actx AlertContext, findings []scanner.Finding) Alert {
	severity := string(scanner.SeverityMedium)
	alertFindings := make([]AlertFinding, 0, len(findings))
	for _, f := range findings {
		if f.Severity == scanner.SeverityHigh {
			severity = string(scanner.SeverityHigh)
		}
		alertFindings = append(alertFindings, AlertFinding{
			Type:          string(f.Type),
			Severity:      string(f.Severity),
			RedactedValue: f.RedactedValue,
		})
	}

	return Alert{
		Type:      "sensitive_data_detected",
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Context:   actx,
		Findings:  alertFindings,
	}
}

// Publisher delivers alerts to an external destination
type Publisher interface {
	Publish(ctx context.Context, alert Alert) error
}

// LogPublisher writes alerts to the structured log. Used when no topic is
// configured.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.New("alerts")}
}

// Publish logs the alert as a warning
func (p *LogPublisher) Publish(_ context.Context, alert Alert) error {
	p.log.Warn(alert.Context.RequestID, "security alert (no topic configured)", map[string]interface{}{
		"alert_type": alert.Type,
		"severity":   alert.Severity,
		"findings":   len(alert.Findings),
		"route":      alert.Context.Route,
	})
	return nil
}

// SNSPublisher publishes alerts to an SNS topic
type SNSPublisher struct {
	client   *sns.Client
	topicARN string
	log      *logger.Logger
}

// NewSNSPublisher creates a publisher for the given topic using the default
// AWS credential chain
func NewSNSPublisher(ctx context.Context, topicARN, region string) (*SNSPublisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SNSPublisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		log:      logger.New("alerts"),
	}, nil
}

// Publish sends the alert to the topic as a JSON message
func (p *SNSPublisher) Publish(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", alert.Severity, alert.Type)
	message := string(body)

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Subject:  &subject,
		Message:  &message,
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	return nil
}
