// Package notify delivers webhook alerts for events that warrant human
// attention: declined applications and fairness audits that fail the
// 80% rule.
package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Notifier posts JSON event payloads to a configured webhook URL. A
// nil Notifier is valid and drops all events, so callers never need to
// branch on whether webhooks are configured.
type Notifier struct {
	url  string
	rest *resty.Client
}

// New builds a webhook notifier. An empty URL returns nil, which
// disables delivery.
func New(url string, timeout time.Duration) *Notifier {
	if url == "" {
		return nil
	}
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Notifier{url: url, rest: r}
}

type decisionEvent struct {
	Event       string  `json:"event"`
	ApplicantID string  `json:"applicant_id"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Reason      string  `json:"reason"`
}

type auditEvent struct {
	Event                string  `json:"event"`
	DisparateImpactRatio float64 `json:"disparate_impact_ratio"`
	ReferenceGroup       string  `json:"reference_group"`
	Narrative            string  `json:"narrative"`
}

// DeclineAlert reports a declined application.
func (n *Notifier) DeclineAlert(applicantID, label string, probability float64, reason string) {
	if n == nil {
		return
	}
	n.post(decisionEvent{
		Event:       "decision.declined",
		ApplicantID: applicantID,
		Label:       label,
		Probability: probability,
		Reason:      reason,
	})
}

// AuditFailureAlert reports a fairness audit that failed the 80% rule.
func (n *Notifier) AuditFailureAlert(ratio float64, referenceGroup, narrative string) {
	if n == nil {
		return
	}
	n.post(auditEvent{
		Event:                "audit.80pct_rule_failed",
		DisparateImpactRatio: ratio,
		ReferenceGroup:       referenceGroup,
		Narrative:            narrative,
	})
}

func (n *Notifier) post(payload any) {
	resp, err := n.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		log.Warn().Err(err).Str("url", n.url).Msg("webhook delivery failed")
		return
	}
	if resp.StatusCode() >= 300 {
		log.Warn().Int("status", resp.StatusCode()).Str("url", n.url).Msg("webhook rejected")
	}
}

// Ping verifies the webhook endpoint is reachable.
func (n *Notifier) Ping() error {
	if n == nil {
		return nil
	}
	resp, err := n.rest.R().Get(n.url)
	if err != nil {
		return fmt.Errorf("webhook unreachable: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("webhook unhealthy: status %d", resp.StatusCode())
	}
	return nil
}
