package contract

import "time"

// ContentDraft is the channel-specific content generated from a Blueprint.
// Exactly one of Email or SMS is set, matching the request channel.
type ContentDraft struct {
	Email *EmailContent `json:"email,omitempty" validate:"omitempty"`
	SMS   *SMSContent   `json:"sms,omitempty" validate:"omitempty"`

	// Embedded Blueprint for downstream consistency
	Blueprint Blueprint `json:"blueprint"`
}

// EmailContent is a generated email.
type EmailContent struct {
	Subject string `json:"subject" validate:"required,min=1,max=200"`

	// HTML body with merge tags
	Template string `json:"template" validate:"required,min=1,max=100000,safe_markup"`

	// Optional plain-text preheader
	Preheader string `json:"preheader,omitempty" validate:"omitempty,max=200"`
}

// SMSContent is a generated smishing message set.
type SMSContent struct {
	Messages []string `json:"messages" validate:"required,min=1,max=5,dive,min=1,max=480"`
}

// ArtifactSet is the set of landing pages derived from a ContentDraft.
// Pages share branding signals carried from the draft.
type ArtifactSet struct {
	Pages []Page `json:"pages" validate:"required,min=1,max=3,dive"`

	// Layout and style selected for the whole set
	Layout string `json:"layout,omitempty"`
	Style  string `json:"style,omitempty"`
}

// Page is one landing page.
type Page struct {
	Type     PageType `json:"type" validate:"required,oneof=login success info"`
	Template string   `json:"template" validate:"required,min=1,max=200000,safe_markup"`
}

// Find returns the page of the given type, if present.
func (a *ArtifactSet) Find(t PageType) (Page, bool) {
	for _, p := range a.Pages {
		if p.Type == t {
			return p, true
		}
	}
	return Page{}, false
}

// FinalBundle is the assembled, persistable result of a run.
type FinalBundle struct {
	ID        string        `json:"id"`
	Channel   Channel       `json:"channel"`
	Content   *ContentDraft `json:"content,omitempty"`
	Artifacts *ArtifactSet  `json:"artifacts,omitempty"`

	// Redacted Blueprint (no provider/model)
	Blueprint Blueprint `json:"blueprint"`

	// Echo of the policy text the run was generated under
	PolicyContext string `json:"policy_context,omitempty"`

	Language   string     `json:"language"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"created_at"`
}
