package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cymbytes.com/cymlure/pkg/contract"
)

func validBlueprint() *contract.Blueprint {
	return &contract.Blueprint{
		Scenario:    "Invoice payment confirmation",
		Name:        "Invoice Confirmation",
		Description: "A supplier asks the target to confirm a pending payment.",
		Category:    "Finance",
		Method:      contract.MethodDataSubmission,
		Triggers:    []string{"urgency", "authority"},
		Tone:        "formal",
		FromName:    "Accounts Payable",
		FromAddress: "ap@supplier-portal.example",
		RedFlags:    []string{"Unexpected request", "Lookalike domain"},
		AudienceFit: "Finance staff routinely process supplier invoices.",
		Kind:        contract.KindLink,
	}
}

func requireValidationError(t *testing.T, err error) *contract.ValidationError {
	t.Helper()
	var ve *contract.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *contract.ValidationError, got %T (%v)", err, err)
	}
	return ve
}

func TestCheck_RequestDefaults(t *testing.T) {
	v := New()

	req := &contract.Request{Topic: "Payment confirmation", Language: "en-gb"}
	if err := v.Check(req); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if req.Difficulty != contract.DifficultyMedium {
		t.Errorf("Difficulty = %q, want %q", req.Difficulty, contract.DifficultyMedium)
	}
	if req.Channel != contract.ChannelEmail {
		t.Errorf("Channel = %q, want %q", req.Channel, contract.ChannelEmail)
	}
	if !req.WantsContent() || !req.WantsLandingPage() {
		t.Error("channel flags should default to true")
	}
	if req.Language != "en-gb" {
		t.Errorf("Language = %q, want caller value kept", req.Language)
	}
}

func TestCheck_RequestDefaultsIdempotent(t *testing.T) {
	v := New()

	req := &contract.Request{Topic: "Parcel delivery", Channel: contract.ChannelSMS}
	if err := v.Check(req); err != nil {
		t.Fatalf("first Check() error = %v", err)
	}
	first := *req

	if err := v.Check(req); err != nil {
		t.Fatalf("second Check() error = %v", err)
	}
	if diff := cmp.Diff(first, *req); diff != "" {
		t.Errorf("second Check() changed request (-first +second):\n%s", diff)
	}
	if req.Language != "en" {
		t.Errorf("Language = %q, want sms default %q", req.Language, "en")
	}
}

func TestCheck_NullCollapsesToAbsent(t *testing.T) {
	v := New()

	withNulls := []byte(`{"topic":"Password expiry","difficulty":null,"language":null,"include_landing_page":null,"target_profile":null}`)
	absent := []byte(`{"topic":"Password expiry"}`)

	var a, b contract.Request
	if err := contract.Decode(withNulls, &a); err != nil {
		t.Fatalf("Decode(withNulls) error = %v", err)
	}
	if err := contract.Decode(absent, &b); err != nil {
		t.Fatalf("Decode(absent) error = %v", err)
	}
	if err := v.Check(&a); err != nil {
		t.Fatalf("Check(a) error = %v", err)
	}
	if err := v.Check(&b); err != nil {
		t.Fatalf("Check(b) error = %v", err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("null and absent decoded differently (-null +absent):\n%s", diff)
	}
}

func TestCheck_Violations(t *testing.T) {
	tests := []struct {
		name      string
		obj       interface{}
		wantField string
		wantRule  string
	}{
		{
			name:      "wrong enum member",
			obj:       &contract.Request{Topic: "x", Difficulty: "Extreme"},
			wantField: "difficulty",
			wantRule:  "oneof",
		},
		{
			name:      "missing required field",
			obj:       &contract.Request{},
			wantField: "topic",
			wantRule:  "required",
		},
		{
			name: "over-length description",
			obj: func() interface{} {
				bp := validBlueprint()
				bp.Description = strings.Repeat("a", 301)
				return bp
			}(),
			wantField: "description",
			wantRule:  "max",
		},
		{
			name: "empty array where one is required",
			obj: func() interface{} {
				bp := validBlueprint()
				bp.RedFlags = []string{}
				return bp
			}(),
			wantField: "red_flags",
			wantRule:  "min",
		},
		{
			name: "confidence out of range",
			obj: func() interface{} {
				bp := validBlueprint()
				c := 1.5
				bp.Confidence = &c
				return bp
			}(),
			wantField: "confidence",
			wantRule:  "max",
		},
		{
			name:      "draft without channel payload",
			obj:       &contract.ContentDraft{Blueprint: *validBlueprint()},
			wantField: "email",
			wantRule:  "one_channel",
		},
		{
			name: "request with no outputs",
			obj: &contract.Request{
				Topic:              "x",
				IncludeContent:     contract.Bool(false),
				IncludeLandingPage: contract.Bool(false),
			},
			wantField: "include_content",
			wantRule:  "one_output",
		},
		{
			name: "page loading a remote script",
			obj: &contract.ArtifactSet{Pages: []contract.Page{{
				Type:     contract.PageLogin,
				Template: `<html><script src="https://cdn.example/x.js"></script></html>`,
			}}},
			wantField: "pages[0].template",
			wantRule:  "safe_markup",
		},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := requireValidationError(t, v.Check(tt.obj))
			if ve.Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q (%v)", ve.Field(), tt.wantField, ve)
			}
			if ve.Rule() != tt.wantRule {
				t.Errorf("Rule() = %q, want %q (%v)", ve.Rule(), tt.wantRule, ve)
			}
		})
	}
}

func TestCheck_BlueprintMethodDefault(t *testing.T) {
	v := New()

	bp := validBlueprint()
	bp.Method = ""
	if err := v.Check(bp); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if bp.Method != contract.MethodClickOnly {
		t.Errorf("Method = %q, want default %q", bp.Method, contract.MethodClickOnly)
	}
}

type defaultsLeaf struct {
	Mode  string `default:"plain"`
	Count int    `default:"3"`
	Label string
}

// SetDefaults derives Label from the tag-filled Mode.
func (l *defaultsLeaf) SetDefaults() {
	if l.Label == "" {
		l.Label = l.Mode + "-label"
	}
}

type defaultsTree struct {
	Enabled *bool `default:"true"`
	Leaf    defaultsLeaf
	Ptr     *defaultsLeaf
	Items   []defaultsLeaf
}

func TestApplyDefaults_NestedAndHooks(t *testing.T) {
	tree := &defaultsTree{
		Ptr:   &defaultsLeaf{Mode: "bold"},
		Items: []defaultsLeaf{{}, {Count: 9}},
	}
	if err := ApplyDefaults(tree); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}

	want := &defaultsTree{
		Enabled: contract.Bool(true),
		Leaf:    defaultsLeaf{Mode: "plain", Count: 3, Label: "plain-label"},
		Ptr:     &defaultsLeaf{Mode: "bold", Count: 3, Label: "bold-label"},
		Items: []defaultsLeaf{
			{Mode: "plain", Count: 3, Label: "plain-label"},
			{Mode: "plain", Count: 9, Label: "plain-label"},
		},
	}
	if diff := cmp.Diff(want, tree); diff != "" {
		t.Errorf("ApplyDefaults() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyDefaults_KeepsExplicitFalse(t *testing.T) {
	req := &contract.Request{Topic: "Team lunch", IncludeLandingPage: contract.Bool(false)}
	if err := ApplyDefaults(req); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if req.WantsLandingPage() {
		t.Error("explicit false overwritten by default")
	}
	if !req.WantsContent() {
		t.Error("absent flag should default to true")
	}
	if req.Language != contract.DefaultLanguage(contract.ChannelEmail) {
		t.Errorf("Language = %q, want channel default", req.Language)
	}
}

func TestApplyDefaults_RejectsNonPointer(t *testing.T) {
	if err := ApplyDefaults(contract.Request{}); err == nil {
		t.Error("expected error for non-pointer input")
	}
}
