package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// JitNotifier defines the interface for JIT grant notification delivery.
// Implementations send notifications to specific backends when a grant's
// lifecycle state changes.
type JitNotifier interface {
	// NotifyJit sends a notification for the given JIT grant event.
	// Returns an error if delivery fails.
	NotifyJit(ctx context.Context, event *JitEvent) error
}

// SNSJitNotifier publishes JIT grant notification events to an AWS SNS
// topic. It implements the JitNotifier interface for AWS-native
// notification delivery.
//
// Messages are published as JSON with a MessageAttribute "event_type"
// for subscription filtering. Subscribers can filter by event type
// (e.g., only receive "jit.granted" events).
type SNSJitNotifier struct {
	client   snsAPI
	topicARN string
}

// NewSNSJitNotifier creates a new SNSJitNotifier using the provided AWS configuration.
// The topicARN specifies the SNS topic to publish events to.
func NewSNSJitNotifier(cfg aws.Config, topicARN string) *SNSJitNotifier {
	return &SNSJitNotifier{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
	}
}

// newSNSJitNotifierWithClient creates an SNSJitNotifier with a custom client.
// This is primarily used for testing with mock clients.
func newSNSJitNotifierWithClient(client snsAPI, topicARN string) *SNSJitNotifier {
	return &SNSJitNotifier{client: client, topicARN: topicARN}
}

// NotifyJit publishes the JIT grant event to the configured SNS topic.
func (n *SNSJitNotifier) NotifyJit(ctx context.Context, event *JitEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type.String()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// WebhookJitNotifier sends JIT grant notifications to an HTTP webhook
// endpoint. It implements the JitNotifier interface.
type WebhookJitNotifier struct {
	url        string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewWebhookJitNotifier creates a new WebhookJitNotifier with the given configuration.
// Returns an error if the URL is empty or invalid.
func NewWebhookJitNotifier(config WebhookConfig) (*WebhookJitNotifier, error) {
	if config.URL == "" {
		return nil, errors.New("webhook URL is required")
	}
	if _, err := url.ParseRequestURI(config.URL); err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}

	timeout := config.TimeoutSeconds
	if timeout == 0 {
		timeout = 10
	}
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := config.RetryDelaySeconds
	if retryDelay == 0 {
		retryDelay = 1
	}

	return &WebhookJitNotifier{
		url:        config.URL,
		client:     &http.Client{Timeout: time.Duration(timeout) * time.Second},
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelay) * time.Second,
	}, nil
}

// NotifyJit sends the JIT grant event to the configured webhook URL. It
// retries on 5xx errors or network errors with exponential backoff.
func (w *WebhookJitNotifier) NotifyJit(ctx context.Context, event *JitEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			delay := w.retryDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-USP-Event", string(event.Type))

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}
		return fmt.Errorf("webhook request failed: status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook delivery failed after %d retries: %w", w.maxRetries, lastErr)
}

// MultiJitNotifier composes multiple JIT notifiers and sends to all of them.
type MultiJitNotifier struct {
	notifiers []JitNotifier
}

// NewMultiJitNotifier creates a new MultiJitNotifier with the given
// notifiers. Nil notifiers are filtered out for convenience.
func NewMultiJitNotifier(notifiers ...JitNotifier) *MultiJitNotifier {
	filtered := make([]JitNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	return &MultiJitNotifier{notifiers: filtered}
}

// NotifyJit sends the event to all configured notifiers, joining errors.
func (m *MultiJitNotifier) NotifyJit(ctx context.Context, event *JitEvent) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifyJit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopJitNotifier is a no-op JIT notifier. Useful for testing or when
// notifications are disabled.
type NoopJitNotifier struct{}

// NotifyJit does nothing and returns nil.
func (n *NoopJitNotifier) NotifyJit(_ context.Context, _ *JitEvent) error {
	return nil
}
