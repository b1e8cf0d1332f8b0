package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/pkg/contract"
)

// StubClient returns canned, contract-valid answers without network access.
// It reads the task marker of the system instruction to decide the shape.
type StubClient struct{}

// NewStubClient creates a stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

var (
	stubKindRe    = regexp.MustCompile(`(?m)^Kind: (\w+)`)
	stubFixedRe   = regexp.MustCompile(`scenario kind is fixed: (\w+)`)
	stubVariantRe = regexp.MustCompile(`Variant: ([a-z-]+)\.`)
	stubMethodRe  = regexp.MustCompile(`(?m)^Method: ([A-Za-z-]+)`)
)

// Generate implements Client.
func (s *StubClient) Generate(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{Provider: "stub", Err: err}
	}

	var out interface{}
	switch prompts.TaskOf(system) {
	case prompts.TaskPreCheck:
		qr := strings.Contains(strings.ToLower(user), "qr")
		vector := contract.KindLink
		if qr {
			vector = contract.KindQR
		}
		out = map[string]interface{}{"is_quishing": qr, "vector": vector, "confidence": 0.9}

	case prompts.TaskAnalyze:
		kind := contract.ScenarioKind(firstMatch(stubFixedRe, system))
		out = stubBlueprint(kind)

	case prompts.TaskContent:
		kind := contract.ScenarioKind(firstMatch(stubKindRe, user))
		if strings.Contains(system, `"sms"`) {
			out = map[string]interface{}{"sms": contract.SMSContent{Messages: []string{stubSMS(kind)}}}
		} else {
			out = map[string]interface{}{"email": contract.EmailContent{
				Subject:   "Action required: confirm your pending payment",
				Preheader: "Your supplier payment is on hold",
				Template:  stubEmail(kind),
			}}
		}

	case prompts.TaskArtifacts:
		method := contract.Method(firstMatch(stubMethodRe, user))
		out = contract.ArtifactSet{Pages: stubPages(method)}

	case prompts.TaskInbox:
		variant := contract.Variant(firstMatch(stubVariantRe, system))
		out = stubInboxEmail(variant)

	default:
		return "", &TransportError{Provider: "stub", Err: fmt.Errorf("unrecognized task")}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", &TransportError{Provider: "stub", Err: err}
	}
	return "```json\n" + string(data) + "\n```", nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func stubBlueprint(kind contract.ScenarioKind) contract.Blueprint {
	conf := 0.85
	return contract.Blueprint{
		Scenario:    "Supplier payment confirmation",
		Name:        "Payment Confirmation",
		Description: "A supplier portal asks the recipient to confirm a pending payment before it is released.",
		Category:    "Finance",
		Method:      contract.MethodDataSubmission,
		Triggers:    []string{"urgency", "authority"},
		Tone:        "formal",
		FromName:    "Supplier Payments",
		FromAddress: "payments@supplier-portal.example",
		RedFlags:    []string{"Unexpected payment request", "Lookalike sender domain", "Deadline pressure"},
		AudienceFit: "Finance teams routinely confirm supplier payments and expect portal notifications.",
		IsQuishing:  kind == contract.KindQR,
		Confidence:  &conf,
		Design: &contract.BrandDesign{
			Industry:   "Finance",
			Primary:    "#1a3d6d",
			Secondary:  "#f4f6f9",
			Accent:     "#e07a1f",
			Typography: "Helvetica, Arial, sans-serif",
			Pattern:    "subtle diagonal lines",
		},
	}
}

func stubEmail(kind contract.ScenarioKind) string {
	cta := `<a href="` + contract.MergeTagPhishingURL + `" style="background:#1a3d6d;color:#fff;padding:12px 24px;text-decoration:none">Confirm payment</a>`
	if kind == contract.KindQR {
		cta = `<img src="` + contract.MergeTagQRCodeImage + `" alt="Scan to confirm" width="160" height="160">`
	}
	return `<!DOCTYPE html><html><body style="font-family:Helvetica,Arial,sans-serif">` +
		`<img src="` + contract.MergeTagLogo + `" alt="logo" height="40">` +
		`<p>Dear ` + contract.MergeTagFirstName + `,</p>` +
		`<p>A payment to your account is pending confirmation and will be released once confirmed.</p>` +
		`<p>` + cta + `</p>` +
		`<p>Supplier Payments</p></body></html>`
}

func stubSMS(kind contract.ScenarioKind) string {
	if kind == contract.KindQR {
		return "Supplier Payments: your payment is on hold. Scan the code to confirm: " + contract.MergeTagQRCodeImage
	}
	return "Supplier Payments: your payment is on hold. Confirm today: " + contract.MergeTagPhishingURL
}

func stubPages(method contract.Method) []contract.Page {
	body := `<p>Your payment has been queued.</p><a href="/continue">Continue</a>`
	if method == contract.MethodDataSubmission {
		body = `<form method="post" action="/submit"><input name="email" type="email"><input name="password" type="password"><button>Sign in</button></form>`
	}
	page := func(title, inner string) string {
		return `<!DOCTYPE html><html><head><title>` + title + `</title></head>` +
			`<body style="font-family:Helvetica,Arial,sans-serif;background:#f4f6f9">` +
			`<img src="` + contract.MergeTagLogo + `" alt="logo" height="40">` + inner + `</body></html>`
	}
	return []contract.Page{
		{Type: contract.PageLogin, Template: page("Supplier Portal", body)},
		{Type: contract.PageSuccess, Template: page("Confirmed", `<p>Thank you. Your payment has been confirmed.</p>`)},
	}
}

func stubInboxEmail(v contract.Variant) contract.InboxEmail {
	switch v {
	case contract.VariantObvious:
		return contract.InboxEmail{
			FromName: "Paymnet Team", FromAddress: "alerts@secure-payments-verify.example",
			Subject: "URGENT!!! Payment on hold", Preview: "Confirm now or lose access",
			Body:        `<p>Dear customer, confirm <a href="` + contract.MergeTagPhishingURL + `">here</a> immediately.</p>`,
			AuthResults: "spf=fail dkim=none dmarc=fail", IsPhishing: true,
		}
	case contract.VariantSophisticated:
		return contract.InboxEmail{
			FromName: "Supplier Payments", FromAddress: "payments@supplier-portal.example",
			Subject: "Payment confirmation required", Preview: "A supplier payment is awaiting confirmation",
			Body:        `<p>Hello, please review the pending payment in the <a href="` + contract.MergeTagPhishingURL + `">portal</a>.</p>`,
			AuthResults: "spf=pass dkim=pass dmarc=none", IsPhishing: true,
		}
	case contract.VariantCasualLegitimate:
		return contract.InboxEmail{
			FromName: "Sam from Facilities", FromAddress: "sam@corp.example",
			Subject: "Coffee machine fixed", Preview: "The second floor machine works again",
			Body:        `<p>Hi all, the coffee machine on the second floor is fixed.</p>`,
			AuthResults: "spf=pass dkim=pass dmarc=pass",
		}
	default:
		return contract.InboxEmail{
			FromName: "HR Department", FromAddress: "hr@corp.example",
			Subject: "Updated leave policy", Preview: "Please read the updated leave policy",
			Body:        `<p>Dear colleagues, the updated leave policy is attached.</p>`,
			AuthResults: "spf=pass dkim=pass dmarc=pass", Attachment: "leave-policy.pdf",
		}
	}
}
