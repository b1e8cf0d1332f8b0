package contract

// Blueprint is the structured scenario analysis produced by the Analyze stage.
// It binds every later stage: no later output may contradict its fields.
type Blueprint struct {
	// Scenario label, e.g. "Invoice payment confirmation"
	Scenario string `json:"scenario" validate:"required,min=1,max=200"`

	// Short template name
	Name string `json:"name" validate:"required,min=1,max=60"`

	// Bounded-length description
	Description string `json:"description" validate:"required,min=1,max=300"`

	// Category label, e.g. "Finance"
	Category string `json:"category" validate:"required,min=1,max=80"`

	// Interaction method
	Method Method `json:"method" default:"Click-Only" validate:"required,oneof=Click-Only Data-Submission"`

	// Psychological triggers the scenario relies on
	Triggers []string `json:"psychological_triggers" validate:"required,min=1,max=10,dive,min=1,max=120"`

	// Tone of voice
	Tone string `json:"tone" validate:"required,min=1,max=80"`

	// Sender identity
	FromName    string `json:"from_name" validate:"required,min=1,max=120"`
	FromAddress string `json:"from_address" validate:"required,email,max=254"`

	// Red flags a trained user should spot
	RedFlags []string `json:"red_flags" validate:"required,min=1,max=12,dive,min=1,max=300"`

	// Why this scenario fits the audience
	AudienceFit string `json:"target_audience_analysis" validate:"required,min=1,max=1000"`

	// Classification flag: the lure relies on a QR code
	IsQuishing bool `json:"is_quishing"`

	// Router discriminant; set by the pipeline, never by the model
	Kind ScenarioKind `json:"kind" validate:"required,oneof=qr link"`

	// Analysis confidence in [0,1]
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`

	// Brand / industry design hints
	Design *BrandDesign `json:"design,omitempty" validate:"omitempty"`

	// Internal-only provider selection; stripped before exposure
	Provider string `json:"provider,omitempty" internal:"true"`
	Model    string `json:"model,omitempty" internal:"true"`
}

// BrandDesign carries visual identity hints shared by content and pages.
type BrandDesign struct {
	Industry   string `json:"industry,omitempty" validate:"omitempty,max=80"`
	Primary    string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	Secondary  string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
	Accent     string `json:"accent_color,omitempty" validate:"omitempty,hexcolor"`
	Typography string `json:"typography,omitempty" validate:"omitempty,max=120"`
	Pattern    string `json:"pattern,omitempty" validate:"omitempty,max=120"`
}

// Redacted returns a copy of b without internal-only fields.
func (b Blueprint) Redacted() Blueprint {
	b.Provider = ""
	b.Model = ""
	b.Triggers = append([]string(nil), b.Triggers...)
	b.RedFlags = append([]string(nil), b.RedFlags...)
	if b.Design != nil {
		d := *b.Design
		b.Design = &d
	}
	if b.Confidence != nil {
		c := *b.Confidence
		b.Confidence = &c
	}
	return b
}
