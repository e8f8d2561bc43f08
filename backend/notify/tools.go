package notify

import (
	"context"

	"github.com/furisto/scout/backend/tool"
)

type alertInput struct {
	VulnerabilityType string `json:"vulnerability_type" jsonschema:"description=Type of vulnerability (e.g. XSS, SQL Injection, IDOR)"`
	Severity          string `json:"severity" jsonschema:"description=Severity level (Critical, High, Medium, Low, Info)"`
	TargetURL         string `json:"target_url" jsonschema:"description=The affected URL or endpoint"`
	Description       string `json:"description" jsonschema:"description=Detailed description of the vulnerability"`
	Evidence          string `json:"evidence" jsonschema:"description=Optional proof-of-concept or evidence details"`
	Recommendation    string `json:"recommendation" jsonschema:"description=Optional remediation recommendation"`
	ThreadTS          string `json:"thread_ts" jsonschema:"description=Optional thread timestamp to reply to existing thread"`
}

type summaryInput struct {
	TargetURL     string `json:"target_url" jsonschema:"description=The target that was scanned"`
	TotalFindings int    `json:"total_findings" jsonschema:"description=Total number of vulnerabilities found"`
	CriticalCount int    `json:"critical_count" jsonschema:"description=Number of critical severity findings"`
	HighCount     int    `json:"high_count" jsonschema:"description=Number of high severity findings"`
	MediumCount   int    `json:"medium_count" jsonschema:"description=Number of medium severity findings"`
	LowCount      int    `json:"low_count" jsonschema:"description=Number of low severity findings"`
	ScanDuration  string `json:"scan_duration" jsonschema:"description=Optional duration of the scan"`
}

// AlertTool lets the model report a confirmed finding to Slack. Delivery
// failures are returned as a status payload, never as a dispatch error.
func (n *Notifier) AlertTool() tool.Tool {
	return tool.New(
		"send_slack_alert",
		"Send a security vulnerability alert to Slack.",
		func(ctx context.Context, input alertInput) (string, error) {
			return n.SendAlert(ctx, Alert{
				VulnerabilityType: input.VulnerabilityType,
				Severity:          input.Severity,
				TargetURL:         input.TargetURL,
				Description:       input.Description,
				Evidence:          input.Evidence,
				Recommendation:    input.Recommendation,
				ThreadTS:          input.ThreadTS,
			}), nil
		},
	)
}

// SummaryTool lets the model post the end-of-scan rollup.
func (n *Notifier) SummaryTool() tool.Tool {
	return tool.New(
		"send_slack_summary",
		"Send a summary of the security scan to Slack.",
		func(ctx context.Context, input summaryInput) (string, error) {
			return n.SendSummary(ctx, ScanSummary{
				TargetURL:     input.TargetURL,
				TotalFindings: input.TotalFindings,
				CriticalCount: input.CriticalCount,
				HighCount:     input.HighCount,
				MediumCount:   input.MediumCount,
				LowCount:      input.LowCount,
				ScanDuration:  input.ScanDuration,
			}), nil
		},
	)
}
