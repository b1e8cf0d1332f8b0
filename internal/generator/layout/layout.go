// Package layout selects the landing page layout and visual style shared by
// every page of an ArtifactSet.
package layout

import (
	"fmt"
	"math/rand"
)

// Layout describes page structure.
type Layout struct {
	Name        string
	Description string
}

// Style describes visual treatment.
type Style struct {
	Name        string
	Description string
}

// Layouts is the fixed layout pool.
var Layouts = []Layout{
	{Name: "centered-card", Description: "Single centered card on a soft background, logo above the form."},
	{Name: "split-hero", Description: "Two columns: brand hero image on the left, form on the right."},
	{Name: "top-banner", Description: "Full-width brand banner with the form below in a narrow column."},
	{Name: "portal-sidebar", Description: "Corporate portal frame with a left navigation rail and content panel."},
	{Name: "minimal", Description: "Plain white page, small logo, left-aligned form, no decoration."},
}

// Styles is the fixed style pool.
var Styles = []Style{
	{Name: "flat", Description: "Flat colors, no shadows, square corners."},
	{Name: "soft", Description: "Rounded corners, subtle shadows, generous spacing."},
	{Name: "corporate", Description: "Conservative palette, thin borders, serif headings."},
	{Name: "modern", Description: "Bold primary color accents, large type, pill buttons."},
}

// Selection is a chosen layout and style.
type Selection struct {
	Layout Layout
	Style  Style
}

// Select picks a layout and style from rng. Callers own rng; tests pass a
// seeded source to get a fixed sequence.
func Select(rng *rand.Rand) Selection {
	return Selection{
		Layout: Layouts[rng.Intn(len(Layouts))],
		Style:  Styles[rng.Intn(len(Styles))],
	}
}

// At returns the selection for pre-chosen indexes.
func At(layoutIdx, styleIdx int) (Selection, error) {
	if layoutIdx < 0 || layoutIdx >= len(Layouts) {
		return Selection{}, fmt.Errorf("layout index %d out of range", layoutIdx)
	}
	if styleIdx < 0 || styleIdx >= len(Styles) {
		return Selection{}, fmt.Errorf("style index %d out of range", styleIdx)
	}
	return Selection{Layout: Layouts[layoutIdx], Style: Styles[styleIdx]}, nil
}
