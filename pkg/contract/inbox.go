package contract

// Variant is a named generation class in an inbox fan-out batch.
type Variant string

const (
	VariantObvious          Variant = "obvious"
	VariantSophisticated    Variant = "sophisticated"
	VariantCasualLegitimate Variant = "casual-legitimate"
	VariantFormalLegitimate Variant = "formal-legitimate"
)

// InboxVariants is the fixed, ordered list of variants for an inbox batch.
var InboxVariants = []Variant{
	VariantObvious,
	VariantSophisticated,
	VariantCasualLegitimate,
	VariantFormalLegitimate,
}

// IsPhishing reports whether the variant simulates an attack.
func (v Variant) IsPhishing() bool {
	return v == VariantObvious || v == VariantSophisticated
}

// DiversityHint is the parameter bundle that differentiates one variant's
// output from another's.
type DiversityHint struct {
	SenderDomainStyle string `json:"sender_domain_style"`
	GreetingStyle     string `json:"greeting_style"`
	AuthRealism       string `json:"auth_realism"`
	AttachmentPolicy  string `json:"attachment_policy"`

	// Caller insight overrides
	PreferredDomain string `json:"preferred_domain,omitempty"`
	Greeting        string `json:"greeting,omitempty"`
}

// InboxInsights are caller-supplied overrides for diversity hints.
type InboxInsights struct {
	PreferredDomains []string `json:"preferred_domains,omitempty" validate:"omitempty,max=10,dive,fqdn"`
	Greetings        []string `json:"greetings,omitempty" validate:"omitempty,max=10,dive,min=1,max=80"`
}

// InboxEmail is the contract for one generated inbox message.
type InboxEmail struct {
	FromName    string `json:"from_name" validate:"required,min=1,max=120"`
	FromAddress string `json:"from_address" validate:"required,email,max=254"`
	Subject     string `json:"subject" validate:"required,min=1,max=200"`
	Preview     string `json:"preview" validate:"required,min=1,max=200"`
	Body        string `json:"body" validate:"required,min=1,max=50000"`

	// Raw Authentication-Results header value the simulation displays
	AuthResults string `json:"auth_results" default:"none" validate:"required,max=300"`

	// Optional attachment name; only allowed when the hint permits attachments
	Attachment string `json:"attachment,omitempty" validate:"omitempty,max=120"`

	IsPhishing bool `json:"is_phishing"`
}

// InboxItem is one annotated fan-out output.
type InboxItem struct {
	// 1-based position in the batch, matching variant order
	Position  int        `json:"position"`
	Variant   Variant    `json:"variant"`
	Timestamp string     `json:"timestamp"`
	Email     InboxEmail `json:"email"`
}
