package router

import (
	"fmt"
	"strings"

	"cymbytes.com/cymlure/pkg/contract"
)

// Branch is one scenario sub-pipeline. The set of branches is closed: qr and
// link. Later stages obtain the branch from the Blueprint via ForKind and
// never re-decide it.
type Branch interface {
	Kind() contract.ScenarioKind

	// Instruction fragments per stage
	AnalyzeGuidance() string
	ContentGuidance() string
	PageGuidance() string

	// CheckBlueprint rejects a Blueprint whose flags contradict the branch.
	CheckBlueprint(bp *contract.Blueprint) error
	// CheckContent enforces the branch's required and forbidden merge tags.
	CheckContent(d *contract.ContentDraft) error
	// CheckPages rejects pages carrying the branch's forbidden merge tag.
	CheckPages(a *contract.ArtifactSet) error

	sealed()
}

// ForKind returns the branch for a kind fixed on a Blueprint or Request.
func ForKind(k contract.ScenarioKind) (Branch, error) {
	switch k {
	case contract.KindQR:
		return qrBranch{}, nil
	case contract.KindLink:
		return linkBranch{}, nil
	default:
		return nil, &RoutingError{Reason: fmt.Sprintf("unknown scenario kind %q", k)}
	}
}

type qrBranch struct{}

func (qrBranch) Kind() contract.ScenarioKind { return contract.KindQR }

func (qrBranch) AnalyzeGuidance() string {
	return "The lure asks the target to scan a QR code with a phone (e.g. parking permits, MFA re-enrolment, shared documents). Set is_quishing to true."
}

func (qrBranch) ContentGuidance() string {
	return fmt.Sprintf("Place the QR code image with the %s merge tag as the call-to-action. Do not include any clickable button or %s link.",
		contract.MergeTagQRCodeImage, contract.MergeTagPhishingURL)
}

func (qrBranch) PageGuidance() string {
	return "The pages are opened on a phone after scanning; design them mobile-first."
}

func (b qrBranch) CheckBlueprint(bp *contract.Blueprint) error {
	return checkFlag(b, bp)
}

func (b qrBranch) CheckContent(d *contract.ContentDraft) error {
	return checkTags(d, contract.MergeTagQRCodeImage, contract.MergeTagPhishingURL)
}

func (b qrBranch) CheckPages(a *contract.ArtifactSet) error {
	return checkPages(a, contract.MergeTagPhishingURL)
}

func (qrBranch) sealed() {}

type linkBranch struct{}

func (linkBranch) Kind() contract.ScenarioKind { return contract.KindLink }

func (linkBranch) AnalyzeGuidance() string {
	return "The lure asks the target to click a link or button. Set is_quishing to false."
}

func (linkBranch) ContentGuidance() string {
	return fmt.Sprintf("Use the %s merge tag as the href of the call-to-action button or link. Do not include a QR code or %s.",
		contract.MergeTagPhishingURL, contract.MergeTagQRCodeImage)
}

func (linkBranch) PageGuidance() string {
	return "The pages are opened from a desktop browser after clicking; design them desktop-first and responsive."
}

func (b linkBranch) CheckBlueprint(bp *contract.Blueprint) error {
	return checkFlag(b, bp)
}

func (b linkBranch) CheckContent(d *contract.ContentDraft) error {
	return checkTags(d, contract.MergeTagPhishingURL, contract.MergeTagQRCodeImage)
}

func (b linkBranch) CheckPages(a *contract.ArtifactSet) error {
	return checkPages(a, contract.MergeTagQRCodeImage)
}

func (linkBranch) sealed() {}

// ============================================================
// Helper functions
// ============================================================

func checkFlag(b Branch, bp *contract.Blueprint) error {
	want := b.Kind() == contract.KindQR
	if bp.Kind != b.Kind() {
		return violation("Blueprint", "kind", "branch", fmt.Sprintf("kind %q does not match branch %q", bp.Kind, b.Kind()))
	}
	if bp.IsQuishing != want {
		return violation("Blueprint", "is_quishing", "branch", fmt.Sprintf("is_quishing must be %t for a %s scenario", want, b.Kind()))
	}
	return nil
}

func checkTags(d *contract.ContentDraft, required, forbidden string) error {
	field, text := draftText(d)
	if text == "" {
		return nil
	}
	if !strings.Contains(text, required) {
		return violation("ContentDraft", field, "merge_tag", fmt.Sprintf("%s must contain %s", field, required))
	}
	if strings.Contains(text, forbidden) {
		return violation("ContentDraft", field, "merge_tag", fmt.Sprintf("%s must not contain %s", field, forbidden))
	}
	return nil
}

func checkPages(a *contract.ArtifactSet, forbidden string) error {
	for i, p := range a.Pages {
		if strings.Contains(p.Template, forbidden) {
			field := fmt.Sprintf("pages[%d].template", i)
			return violation("ArtifactSet", field, "merge_tag", fmt.Sprintf("%s must not contain %s", field, forbidden))
		}
	}
	return nil
}

func draftText(d *contract.ContentDraft) (string, string) {
	switch {
	case d.Email != nil:
		return "email.template", d.Email.Template
	case d.SMS != nil:
		return "sms.messages", strings.Join(d.SMS.Messages, "\n")
	}
	return "", ""
}

func violation(contractName, field, rule, msg string) *contract.ValidationError {
	return &contract.ValidationError{
		Contract:   contractName,
		Violations: []contract.FieldViolation{{Field: field, Rule: rule, Message: msg}},
	}
}
