// Package assembler merges validated stage outputs into a FinalBundle.
package assembler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/pkg/contract"
)

// Input is everything a finished run produced.
type Input struct {
	Request   *contract.Request
	Policy    policy.Context
	Blueprint *contract.Blueprint
	Content   *contract.ContentDraft
	Artifacts *contract.ArtifactSet
}

// Assembler builds FinalBundles.
type Assembler struct {
	md    goldmark.Markdown
	now   func() time.Time
	newID func() string
}

// New creates an assembler.
func New() *Assembler {
	return &Assembler{
		md:    goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe())),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Assemble merges in into a bundle with a fresh identifier. Provider and
// model selections are stripped from every exposed Blueprint copy, and
// Markdown templates are rendered to HTML.
func (a *Assembler) Assemble(in Input) (*contract.FinalBundle, error) {
	if in.Request == nil || in.Blueprint == nil {
		return nil, fmt.Errorf("assemble: request and blueprint are required")
	}
	if in.Content == nil && in.Artifacts == nil {
		return nil, fmt.Errorf("assemble: nothing to assemble")
	}

	bundle := &contract.FinalBundle{
		ID:            a.newID(),
		Channel:       in.Request.Channel,
		Blueprint:     in.Blueprint.Redacted(),
		PolicyContext: in.Policy.RawPolicy,
		Language:      in.Request.Language,
		Difficulty:    in.Request.Difficulty,
		CreatedAt:     a.now(),
	}

	if in.Content != nil {
		draft := *in.Content
		draft.Blueprint = in.Blueprint.Redacted()
		if draft.Email != nil {
			email := *draft.Email
			body, err := a.toHTML(email.Template)
			if err != nil {
				return nil, fmt.Errorf("render email template: %w", err)
			}
			email.Template = body
			draft.Email = &email
		}
		if draft.SMS != nil {
			sms := contract.SMSContent{Messages: append([]string(nil), draft.SMS.Messages...)}
			draft.SMS = &sms
		}
		bundle.Content = &draft
	}

	if in.Artifacts != nil {
		set := contract.ArtifactSet{
			Layout: in.Artifacts.Layout,
			Style:  in.Artifacts.Style,
			Pages:  make([]contract.Page, 0, len(in.Artifacts.Pages)),
		}
		for _, p := range in.Artifacts.Pages {
			body, err := a.toHTML(p.Template)
			if err != nil {
				return nil, fmt.Errorf("render %s page: %w", p.Type, err)
			}
			set.Pages = append(set.Pages, contract.Page{Type: p.Type, Template: body})
		}
		bundle.Artifacts = &set
	}

	return bundle, nil
}

var mergeTags = []string{
	contract.MergeTagPhishingURL,
	contract.MergeTagQRCodeImage,
	contract.MergeTagFirstName,
	contract.MergeTagLogo,
}

// toHTML passes HTML through untouched and renders anything else as Markdown.
func (a *Assembler) toHTML(template string) (string, error) {
	trimmed := strings.TrimSpace(template)
	if strings.HasPrefix(trimmed, "<") {
		return template, nil
	}

	var buf bytes.Buffer
	if err := a.md.Convert([]byte(trimmed), &buf); err != nil {
		return "", err
	}

	// Link destinations are percent-escaped; merge tags must stay verbatim
	out := buf.String()
	for _, tag := range mergeTags {
		escaped := "%7B" + strings.Trim(tag, "{}") + "%7D"
		out = strings.ReplaceAll(out, escaped, tag)
	}

	return "<!DOCTYPE html>\n<html><body>\n" + out + "</body></html>\n", nil
}
