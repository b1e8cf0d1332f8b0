// Package prompts builds the system and user instructions for each generation
// call. Every system instruction starts with a "Task:" line naming the call.
package prompts

import (
	"fmt"
	"strings"

	"cymbytes.com/cymlure/internal/generator/layout"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/pkg/contract"
)

// Task names a generation call.
type Task string

const (
	TaskPreCheck  Task = "precheck"
	TaskAnalyze   Task = "analyze"
	TaskContent   Task = "content"
	TaskArtifacts Task = "artifacts"
	TaskInbox     Task = "inbox"
)

const taskPrefix = "Task: "

// Instruction is one system/user instruction pair.
type Instruction struct {
	Task   Task
	System string
	User   string
}

// TaskOf reads the task marker from a system instruction.
func TaskOf(system string) Task {
	line := system
	if i := strings.IndexByte(system, '\n'); i >= 0 {
		line = system[:i]
	}
	if !strings.HasPrefix(line, taskPrefix) {
		return ""
	}
	return Task(strings.TrimSpace(strings.TrimPrefix(line, taskPrefix)))
}

const preamble = `You generate content for an authorized security-awareness training platform.
Everything you write is a simulation shown to employees who are being trained to
recognise phishing. Never include real credentials, malware, or working external
links: links and images are always the merge tags listed below.`

const jsonOnly = `Return ONLY a valid JSON object matching the schema, no additional text.`

func system(task Task, body string, pc policy.Context) string {
	var sb strings.Builder
	sb.WriteString(taskPrefix)
	sb.WriteString(string(task))
	sb.WriteString("\n\n")
	sb.WriteString(preamble)
	sb.WriteString("\n\n")
	sb.WriteString(body)

	if pc.DifficultyGuidance != "" {
		sb.WriteString("\n\n## Difficulty\n\n")
		sb.WriteString(pc.DifficultyGuidance)
	}
	if pc.StyleGuide != "" {
		sb.WriteString("\n\n## Language\n\n")
		sb.WriteString(pc.StyleGuide)
	}
	if pc.HasPolicy() {
		sb.WriteString("\n\n## Organization Policy\n\n")
		sb.WriteString(pc.Policy)
	}

	sb.WriteString("\n\n")
	sb.WriteString(jsonOnly)
	return sb.String()
}

// PreCheck asks for a lightweight classification of the request.
func PreCheck(req *contract.Request, pc policy.Context) Instruction {
	body := `## Classification

Decide whether the simulation described below is best delivered as a QR code
lure (quishing) or a traditional link/button lure.

Output schema:
{
  "is_quishing": true | false,
  "vector": "qr" | "link",
  "confidence": <number between 0 and 1>
}`

	return Instruction{
		Task:   TaskPreCheck,
		System: system(TaskPreCheck, body, pc),
		User:   requestSummary(req),
	}
}

// Analyze asks for the Blueprint.
func Analyze(req *contract.Request, pc policy.Context, kind contract.ScenarioKind, guidance string) Instruction {
	body := fmt.Sprintf(`## Scenario Analysis

Design one simulation scenario. The scenario kind is fixed: %s.
%s

Output schema:
{
  "scenario": "<scenario label>",
  "name": "<short template name, max 60 chars>",
  "description": "<max 300 chars>",
  "category": "<category label>",
  "method": "Click-Only" | "Data-Submission",
  "psychological_triggers": ["<trigger>"],
  "tone": "<tone>",
  "from_name": "<sender display name>",
  "from_address": "<sender email address>",
  "red_flags": ["<red flag>"],
  "target_audience_analysis": "<why this fits the audience>",
  "is_quishing": %t,
  "confidence": <number between 0 and 1>,
  "design": {
    "industry": "<industry>",
    "primary_color": "#RRGGBB",
    "secondary_color": "#RRGGBB",
    "accent_color": "#RRGGBB",
    "typography": "<font hint>",
    "pattern": "<visual pattern hint>"
  }
}`, kind, guidance, kind == contract.KindQR)

	return Instruction{
		Task:   TaskAnalyze,
		System: system(TaskAnalyze, body, pc),
		User:   requestSummary(req),
	}
}

// Content asks for the channel payload of a Blueprint.
func Content(req *contract.Request, pc policy.Context, bp *contract.Blueprint, guidance string) Instruction {
	var body string
	switch req.Channel {
	case contract.ChannelSMS:
		body = fmt.Sprintf(`## SMS Content

Write the smishing message set for the scenario. Keep each message under 480
characters. %s

Output schema:
{
  "sms": {
    "messages": ["<message>"]
  }
}`, guidance)
	default:
		body = fmt.Sprintf(`## Email Content

Write the phishing email for the scenario as a complete HTML document with
inline CSS. Use %s for the recipient's first name and %s for the logo image.
%s

Output schema:
{
  "email": {
    "subject": "<max 200 chars>",
    "preheader": "<optional preview text>",
    "template": "<full HTML>"
  }
}`, contract.MergeTagFirstName, contract.MergeTagLogo, guidance)
	}

	return Instruction{
		Task:   TaskContent,
		System: system(TaskContent, body, pc),
		User:   blueprintSummary(bp) + "\n" + requestSummary(req),
	}
}

// Artifacts asks for every landing page in one call. draft may be nil when
// the request skipped content; branding then comes from the Blueprint design.
func Artifacts(req *contract.Request, pc policy.Context, bp *contract.Blueprint, draft *contract.ContentDraft, sel layout.Selection, guidance string) Instruction {
	body := fmt.Sprintf(`## Landing Pages

Write the landing pages for the scenario as complete HTML documents with inline
CSS. All pages must share the same branding, colors and typography.
Layout: %s (%s)
Style: %s (%s)
Use %s for the logo. Forms must post to a relative path.
%s

Page types:
- "login": the page the target lands on%s
- "success": shown after interaction
- "info": optional explanatory page

Output schema:
{
  "pages": [
    {"type": "login" | "success" | "info", "template": "<full HTML>"}
  ]
}`,
		sel.Layout.Name, sel.Layout.Description,
		sel.Style.Name, sel.Style.Description,
		contract.MergeTagLogo, guidance, methodHint(bp.Method))

	var user strings.Builder
	user.WriteString(blueprintSummary(bp))
	if draft != nil {
		user.WriteString("\n## Content To Match\n\n")
		switch {
		case draft.Email != nil:
			user.WriteString(fmt.Sprintf("Email subject: %s\n", draft.Email.Subject))
		case draft.SMS != nil:
			user.WriteString(fmt.Sprintf("SMS: %s\n", strings.Join(draft.SMS.Messages, " | ")))
		}
	} else {
		user.WriteString("\nNo email was generated; derive branding from the design hints alone.\n")
	}

	return Instruction{
		Task:   TaskArtifacts,
		System: system(TaskArtifacts, body, pc),
		User:   user.String(),
	}
}

// InboxEmail asks for one inbox message of a variant.
func InboxEmail(bp *contract.Blueprint, pc policy.Context, variant contract.Variant, hint contract.DiversityHint, timestamp string) Instruction {
	kind := "a legitimate business email unrelated to any attack"
	if variant.IsPhishing() {
		kind = "a phishing email built on the scenario below"
	}

	body := fmt.Sprintf(`## Inbox Message

Write %s for a simulated inbox. Variant: %s.
The message is displayed as received %s.

Diversity:
- Sender domain: %s
- Greeting: %s
- Authentication results: %s
- Attachment: %s

Output schema:
{
  "from_name": "<sender display name>",
  "from_address": "<sender email>",
  "subject": "<subject>",
  "preview": "<one-line preview>",
  "body": "<HTML body>",
  "auth_results": "<Authentication-Results header value>",
  "attachment": "<optional file name>",
  "is_phishing": %t
}`, kind, variant, timestamp,
		orDefault(hint.PreferredDomain, hint.SenderDomainStyle),
		orDefault(hint.Greeting, hint.GreetingStyle),
		hint.AuthRealism, hint.AttachmentPolicy, variant.IsPhishing())

	return Instruction{
		Task:   TaskInbox,
		System: system(TaskInbox, body, pc),
		User:   blueprintSummary(bp),
	}
}

// Corrective appends the failure reason to the user instruction for a retry.
func Corrective(in Instruction, cause error) Instruction {
	in.User = fmt.Sprintf(`%s

## Correction

Your previous answer was rejected: %v
Fix the problem and answer again with the complete JSON object.`, in.User, cause)
	return in
}

// ============================================================
// Helper functions
// ============================================================

func requestSummary(req *contract.Request) string {
	var sb strings.Builder
	sb.WriteString("## Request\n\n")
	sb.WriteString(fmt.Sprintf("Topic: %s\n", req.Topic))
	sb.WriteString(fmt.Sprintf("Channel: %s\n", req.Channel))
	sb.WriteString(fmt.Sprintf("Difficulty: %s\n", req.Difficulty))
	sb.WriteString(fmt.Sprintf("Language: %s\n", req.Language))

	if tp := req.TargetProfile; tp != nil {
		sb.WriteString("\n## Target Profile\n\n")
		if tp.Name != "" {
			sb.WriteString(fmt.Sprintf("Name: %s\n", tp.Name))
		}
		if tp.Department != "" {
			sb.WriteString(fmt.Sprintf("Department: %s\n", tp.Department))
		}
		if len(tp.Triggers) > 0 {
			sb.WriteString(fmt.Sprintf("Triggers: %s\n", strings.Join(tp.Triggers, ", ")))
		}
		if len(tp.Vulnerabilities) > 0 {
			sb.WriteString(fmt.Sprintf("Vulnerabilities: %s\n", strings.Join(tp.Vulnerabilities, ", ")))
		}
	}

	if req.AdditionalContext != "" {
		sb.WriteString(fmt.Sprintf("\nAdditional context:\n%s\n", req.AdditionalContext))
	}
	return sb.String()
}

func blueprintSummary(bp *contract.Blueprint) string {
	var sb strings.Builder
	sb.WriteString("## Blueprint (binding; do not contradict)\n\n")
	sb.WriteString(fmt.Sprintf("Scenario: %s\n", bp.Scenario))
	sb.WriteString(fmt.Sprintf("Name: %s\n", bp.Name))
	sb.WriteString(fmt.Sprintf("Category: %s\n", bp.Category))
	sb.WriteString(fmt.Sprintf("Method: %s\n", bp.Method))
	sb.WriteString(fmt.Sprintf("Kind: %s\n", bp.Kind))
	sb.WriteString(fmt.Sprintf("Tone: %s\n", bp.Tone))
	sb.WriteString(fmt.Sprintf("Sender: %s <%s>\n", bp.FromName, bp.FromAddress))
	sb.WriteString(fmt.Sprintf("Triggers: %s\n", strings.Join(bp.Triggers, ", ")))
	sb.WriteString(fmt.Sprintf("Red flags: %s\n", strings.Join(bp.RedFlags, "; ")))

	if d := bp.Design; d != nil {
		sb.WriteString(fmt.Sprintf("Design: industry=%s primary=%s secondary=%s accent=%s typography=%s pattern=%s\n",
			d.Industry, d.Primary, d.Secondary, d.Accent, d.Typography, d.Pattern))
	}
	return sb.String()
}

func methodHint(m contract.Method) string {
	if m == contract.MethodDataSubmission {
		return " (include a sign-in form)"
	}
	return " (no form; a single call-to-action)"
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
