package contract

// Request is the caller-supplied description of a simulation run.
// It is immutable once accepted; defaults are applied exactly once at ingestion.
type Request struct {
	// Subject of the simulation (e.g. "Payment confirmation")
	Topic string `json:"topic" validate:"required,min=1,max=500"`

	// Stored target profile to resolve into TargetProfile at ingestion
	TargetProfileID string `json:"target_profile_id,omitempty" validate:"omitempty,uuid4"`

	// Who the simulation is aimed at
	TargetProfile *TargetProfile `json:"target_profile,omitempty" validate:"omitempty"`

	// Realism tier
	Difficulty Difficulty `json:"difficulty" default:"Medium" validate:"required,oneof=Easy Medium Hard"`

	// BCP-47 language tag; the default depends on Channel
	Language string `json:"language" validate:"required,bcp47_language_tag"`

	// Delivery channel
	Channel Channel `json:"channel" default:"email" validate:"required,oneof=email sms"`

	// Generate the channel content (email or SMS set)
	IncludeContent *bool `json:"include_content" default:"true" validate:"required"`

	// Generate landing pages after the content
	IncludeLandingPage *bool `json:"include_landing_page" default:"true" validate:"required"`

	// Forces the scenario kind; absent lets the router decide
	Vector ScenarioKind `json:"vector,omitempty" validate:"omitempty,oneof=qr link"`

	// Free-text guidance from the caller
	AdditionalContext string `json:"additional_context,omitempty" validate:"omitempty,max=4000"`

	// Provider/model overrides (never echoed back to callers)
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=openai gemini stub"`
	Model    string `json:"model,omitempty" validate:"omitempty,max=100"`

	// Organizational policy text from the policy store
	PolicyContext string `json:"policy_context,omitempty" validate:"omitempty,max=20000"`
}

// TargetProfile describes the audience of a simulation.
type TargetProfile struct {
	Name            string   `json:"name,omitempty" validate:"omitempty,max=120"`
	Department      string   `json:"department,omitempty" validate:"omitempty,max=120"`
	Triggers        []string `json:"triggers,omitempty" validate:"omitempty,max=20,dive,min=1,max=120"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty" validate:"omitempty,max=20,dive,min=1,max=120"`
}

// SetDefaults fills defaults that depend on other fields.
func (r *Request) SetDefaults() {
	if r.Language == "" {
		r.Language = DefaultLanguage(r.Channel)
	}
}

// WantsContent reports whether the content stage runs.
func (r *Request) WantsContent() bool {
	return BoolValue(r.IncludeContent, true)
}

// WantsLandingPage reports whether the artifact stage runs.
func (r *Request) WantsLandingPage() bool {
	return BoolValue(r.IncludeLandingPage, true)
}

// BoolValue dereferences an optional flag, falling back to def when absent.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
