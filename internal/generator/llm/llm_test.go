package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"cymbytes.com/cymlure/internal/generator/layout"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/pkg/contract"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! Here it is: {\"a\":{\"b\":2}} Hope this helps.", `{"a":{"b":2}}`},
		{"braces in strings", `{"t":"<p>{x}</p>","n":"}"}`, `{"t":"<p>{x}</p>","n":"}"}`},
		{"escaped quote", `{"t":"say \"}\" now"}`, `{"t":"say \"}\" now"}`},
		{"array", "result:\n[1,2,3]", `[1,2,3]`},
		{"merge tag in prose", "I used the {PHISHINGURL} tag as requested:\n{\"is_quishing\": false, \"confidence\": 0.9}",
			`{"is_quishing": false, "confidence": 0.9}`},
		{"bracketed heading", "[Answer] {\"a\":1}", `{"a":1}`},
		{"unclosed brace in prose", "Use {this form then {\"a\":[1,2]}", `{"a":[1,2]}`},
		{"object preferred over array", "[1, 2] and then {\"a\":1}", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanJSON(tt.raw)
			if err != nil {
				t.Fatalf("CleanJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CleanJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanJSON_ParseErrors(t *testing.T) {
	for _, raw := range []string{"", "no json here", `{"a": 1`, `{"a": tru}`} {
		_, err := CleanJSON(raw)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("CleanJSON(%q) error = %v, want *ParseError", raw, err)
		}
	}
}

func TestNewParseError_SnippetKeepsRunes(t *testing.T) {
	// 199 ASCII bytes then a two-byte rune straddling the limit
	raw := strings.Repeat("a", 199) + "ü" + strings.Repeat("b", 50)

	pe := newParseError(raw, errors.New("x"))
	if !utf8.ValidString(pe.Snippet) {
		t.Fatalf("snippet is not valid UTF-8: %q", pe.Snippet)
	}
	if pe.Snippet != strings.Repeat("a", 199) {
		t.Errorf("snippet = %q, want the 199 leading bytes", pe.Snippet)
	}

	short := newParseError("kurz: ä", errors.New("x"))
	if short.Snippet != "kurz: ä" {
		t.Errorf("short snippet = %q", short.Snippet)
	}
}

func TestDecodeInto_DropsNulls(t *testing.T) {
	var bp contract.Blueprint
	if err := DecodeInto("```json\n{\"name\":\"x\",\"method\":null,\"design\":null}\n```", &bp); err != nil {
		t.Fatalf("DecodeInto() error = %v", err)
	}
	if bp.Method != "" || bp.Design != nil {
		t.Errorf("nulls not collapsed: %+v", bp)
	}
}

func TestSet_Resolve(t *testing.T) {
	set := NewSet("stub")
	var gotModel string
	set.Register("stub", "stub-1", func(model string) (Client, error) {
		gotModel = model
		return NewStubClient(), nil
	})

	_, sel, err := set.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if sel.Provider != "stub" || sel.Model != "stub-1" || gotModel != "stub-1" {
		t.Errorf("Resolve defaults = %+v (factory model %q)", sel, gotModel)
	}

	_, sel, err = set.Resolve("stub", "stub-2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if sel.Model != "stub-2" {
		t.Errorf("model override ignored: %+v", sel)
	}

	if _, _, err := set.Resolve("openai", ""); err == nil {
		t.Error("expected error for unregistered provider")
	}
}

func TestStubClient_AnswersEveryTask(t *testing.T) {
	req := &contract.Request{Topic: "Payment confirmation", Difficulty: contract.DifficultyMedium, Language: "en", Channel: contract.ChannelEmail}
	bp := stubBlueprint(contract.KindLink)
	bp.Kind = contract.KindLink
	pc := policy.Context{}

	instructions := []prompts.Instruction{
		prompts.PreCheck(req, pc),
		prompts.Analyze(req, pc, contract.KindLink, ""),
		prompts.Content(req, pc, &bp, ""),
		prompts.Artifacts(req, pc, &bp, nil, layout.Selection{}, ""),
		prompts.InboxEmail(&bp, pc, contract.VariantSophisticated, contract.DiversityHint{}, "1 hour ago"),
	}

	stub := NewStubClient()
	for _, in := range instructions {
		raw, err := stub.Generate(context.Background(), in.System, in.User)
		if err != nil {
			t.Fatalf("%s: Generate() error = %v", in.Task, err)
		}
		if _, err := CleanJSON(raw); err != nil {
			t.Errorf("%s: stub output not clean JSON: %v", in.Task, err)
		}
	}
}

func TestStubClient_QRContent(t *testing.T) {
	req := &contract.Request{Topic: "Parking permit", Channel: contract.ChannelEmail}
	bp := stubBlueprint(contract.KindQR)
	bp.Kind = contract.KindQR

	in := prompts.Content(req, policy.Context{}, &bp, "")
	raw, err := NewStubClient().Generate(context.Background(), in.System, in.User)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var draft contract.ContentDraft
	if err := DecodeInto(raw, &draft); err != nil {
		t.Fatalf("DecodeInto() error = %v", err)
	}
	if !strings.Contains(draft.Email.Template, contract.MergeTagQRCodeImage) {
		t.Error("qr content missing QR merge tag")
	}
	if strings.Contains(draft.Email.Template, contract.MergeTagPhishingURL) {
		t.Error("qr content carries link merge tag")
	}
}

func TestScriptedClient(t *testing.T) {
	s := NewScriptedClient()
	s.Queue(prompts.TaskAnalyze, Reply{Text: "first"}, Reply{Err: errors.New("boom")})

	system := "Task: analyze\n..."
	if got, _ := s.Generate(context.Background(), system, "u"); got != "first" {
		t.Errorf("first reply = %q", got)
	}
	if _, err := s.Generate(context.Background(), system, "u"); err == nil {
		t.Error("second reply should be an error")
	}
	_, err := s.Generate(context.Background(), system, "u")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("empty queue error = %v, want *TransportError", err)
	}
	if n := s.CallsFor(prompts.TaskAnalyze); n != 3 {
		t.Errorf("CallsFor(analyze) = %d, want 3", n)
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	got, err := client.WithModel("gpt-other").Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("Generate() = %q", got)
	}
	if gotBody["model"] != "gpt-other" {
		t.Errorf("request model = %v, want override", gotBody["model"])
	}
}

func TestOpenAIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	_, err = client.Generate(context.Background(), "sys", "user")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Generate() error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want %d", te.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{Model: "m"}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestBuildSet(t *testing.T) {
	cfg := DefaultProvidersConfig()
	cfg.OpenAI.APIKey = "test"

	set, err := BuildSet(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildSet() error = %v", err)
	}
	if got := strings.Join(set.Providers(), ","); got != "openai,stub" {
		t.Errorf("Providers() = %q, want openai,stub", got)
	}

	_, sel, err := set.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if sel.Provider != ProviderStub {
		t.Errorf("default provider = %q, want stub", sel.Provider)
	}

	_, sel, err = set.Resolve(ProviderOpenAI, "")
	if err != nil {
		t.Fatalf("Resolve(openai) error = %v", err)
	}
	if sel.Model != "gpt-4o-mini" {
		t.Errorf("openai model = %q", sel.Model)
	}

	if _, _, err := set.Resolve(ProviderGemini, ""); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Resolve(gemini) error = %v, want ErrUnknownProvider", err)
	}
}

func TestBuildSet_DefaultWithoutCredentials(t *testing.T) {
	cfg := DefaultProvidersConfig()
	cfg.Default = ProviderGemini

	if _, err := BuildSet(context.Background(), cfg); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("BuildSet() error = %v, want ErrUnknownProvider", err)
	}
}
