/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package feedback

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier mirrors a PerformanceAlert to an external channel. The analyzer
// treats a Notifier failure as non-fatal: alerts are always persisted by
// the caller regardless of whether mirroring succeeds.
type Notifier interface {
	Notify(ctx context.Context, alert PerformanceAlert) error
}

// NoopNotifier discards every alert. Used when no webhook is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, PerformanceAlert) error { return nil }

// SlackNotifier posts one message per alert to a configured incoming
// webhook. It is a thin wrapper since slack.PostWebhook is already
// synchronous and context-free; ctx is ignored, and neither Notify nor the
// analyzer that calls it puts a deadline on alert delivery.
type SlackNotifier struct {
	WebhookURL string
}

func (n SlackNotifier) Notify(_ context.Context, alert PerformanceAlert) error {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(
			"[%s] %s/%s: %s (value=%.3f threshold=%.3f)",
			alert.Kind, alert.ToolName, alert.RuleVersion, alert.Message, alert.Value, alert.Threshold,
		),
	}
	return slack.PostWebhook(n.WebhookURL, msg)
}
