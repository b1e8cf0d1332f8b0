package router

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/pkg/contract"
)

func testRequest() *contract.Request {
	return &contract.Request{
		Topic:      "Parking permit renewal",
		Difficulty: contract.DifficultyMedium,
		Language:   "en-gb",
		Channel:    contract.ChannelEmail,
	}
}

func TestRoute_ExplicitVectorSkipsPreCheck(t *testing.T) {
	client := llm.NewScriptedClient()
	req := testRequest()
	req.Vector = contract.KindQR

	b, err := New(zerolog.Nop()).Route(context.Background(), client, req, policy.Context{})
	require.NoError(t, err)
	assert.Equal(t, contract.KindQR, b.Kind())
	assert.Empty(t, client.Calls())
}

func TestRoute_PreCheck(t *testing.T) {
	client := llm.NewScriptedClient().
		Queue(prompts.TaskPreCheck, llm.Reply{Text: `{"is_quishing": true, "vector": "qr", "confidence": 0.8}`})

	b, err := New(zerolog.Nop()).Route(context.Background(), client, testRequest(), policy.Context{})
	require.NoError(t, err)
	assert.Equal(t, contract.KindQR, b.Kind())
	assert.Equal(t, 1, client.CallsFor(prompts.TaskPreCheck))
}

func TestRoute_AmbiguousIsFatalWithoutRetry(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"contradictory", `{"is_quishing": true, "vector": "link", "confidence": 0.9}`},
		{"missing flag", `{"vector": "qr", "confidence": 0.9}`},
		{"null flag", `{"is_quishing": null, "vector": "qr", "confidence": 0.9}`},
		{"low confidence", `{"is_quishing": false, "vector": "link", "confidence": 0.3}`},
		{"missing confidence", `{"is_quishing": false}`},
		{"unknown vector", `{"is_quishing": false, "vector": "sms", "confidence": 0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewScriptedClient().Queue(prompts.TaskPreCheck, llm.Reply{Text: tt.reply})

			_, err := New(zerolog.Nop()).Route(context.Background(), client, testRequest(), policy.Context{})

			var re *RoutingError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 1, client.CallsFor(prompts.TaskPreCheck), "routing errors must not retry")
		})
	}
}

func TestRoute_PreCheckRetriesOnce(t *testing.T) {
	client := llm.NewScriptedClient().Queue(prompts.TaskPreCheck,
		llm.Reply{Text: "I think it's a QR code"},
		llm.Reply{Text: `{"is_quishing": false, "confidence": 0.7}`},
	)

	b, err := New(zerolog.Nop()).Route(context.Background(), client, testRequest(), policy.Context{})
	require.NoError(t, err)
	assert.Equal(t, contract.KindLink, b.Kind())

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "Your previous answer was rejected")
}

func TestRoute_PreCheckFailsAfterRetry(t *testing.T) {
	client := llm.NewScriptedClient().Queue(prompts.TaskPreCheck,
		llm.Reply{Err: &llm.TransportError{Provider: "test", StatusCode: 503, Err: errors.New("unavailable")}},
		llm.Reply{Text: "still not json"},
		llm.Reply{Text: `{"is_quishing": false, "confidence": 0.7}`},
	)

	_, err := New(zerolog.Nop()).Route(context.Background(), client, testRequest(), policy.Context{})

	var pe *PreCheckError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Attempts)
	var parseErr *llm.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, client.CallsFor(prompts.TaskPreCheck))
}

func TestForKind(t *testing.T) {
	for _, k := range contract.AllowedKinds {
		b, err := ForKind(k)
		require.NoError(t, err)
		assert.Equal(t, k, b.Kind())
	}

	_, err := ForKind("voice")
	var re *RoutingError
	assert.ErrorAs(t, err, &re)
}

func TestBranch_CheckBlueprint(t *testing.T) {
	qr, _ := ForKind(contract.KindQR)

	bp := &contract.Blueprint{Kind: contract.KindQR, IsQuishing: true}
	assert.NoError(t, qr.CheckBlueprint(bp))

	bp.IsQuishing = false
	var ve *contract.ValidationError
	require.ErrorAs(t, qr.CheckBlueprint(bp), &ve)
	assert.Equal(t, "is_quishing", ve.Field())
}

func TestBranch_CheckContent(t *testing.T) {
	qr, _ := ForKind(contract.KindQR)
	link, _ := ForKind(contract.KindLink)

	qrEmail := &contract.ContentDraft{Email: &contract.EmailContent{
		Template: `<img src="` + contract.MergeTagQRCodeImage + `">`,
	}}
	linkEmail := &contract.ContentDraft{Email: &contract.EmailContent{
		Template: `<a href="` + contract.MergeTagPhishingURL + `">Open</a>`,
	}}
	linkSMS := &contract.ContentDraft{SMS: &contract.SMSContent{
		Messages: []string{"Pay now: " + contract.MergeTagPhishingURL},
	}}

	assert.NoError(t, qr.CheckContent(qrEmail))
	assert.NoError(t, link.CheckContent(linkEmail))
	assert.NoError(t, link.CheckContent(linkSMS))

	// A link scenario never gets QR-only content, and vice versa.
	var ve *contract.ValidationError
	require.ErrorAs(t, link.CheckContent(qrEmail), &ve)
	assert.Equal(t, "merge_tag", ve.Rule())
	require.ErrorAs(t, qr.CheckContent(linkEmail), &ve)
	assert.Equal(t, "email.template", ve.Field())
}

func TestBranch_CheckPages(t *testing.T) {
	link, _ := ForKind(contract.KindLink)

	set := &contract.ArtifactSet{Pages: []contract.Page{
		{Type: contract.PageLogin, Template: "<p>ok</p>"},
		{Type: contract.PageSuccess, Template: `<img src="` + contract.MergeTagQRCodeImage + `">`},
	}}

	var ve *contract.ValidationError
	require.ErrorAs(t, link.CheckPages(set), &ve)
	assert.Equal(t, "pages[1].template", ve.Field())
}
