package protocol

import "cymbytes.com/cymlure/pkg/contract"

// CreateInboxRequest asks for a simulated inbox for a stored bundle.
type CreateInboxRequest struct {
	contract.InboxInsights

	// Append the generated items to the configured lab mailbox
	Deliver bool `json:"deliver,omitempty"`
}

// CreateTargetRequest creates a stored target profile.
type CreateTargetRequest struct {
	Name            string   `json:"name" validate:"required,min=1,max=120"`
	Department      string   `json:"department,omitempty" validate:"omitempty,max=120"`
	Title           string   `json:"title,omitempty" validate:"omitempty,max=120"`
	Triggers        []string `json:"triggers,omitempty" validate:"omitempty,max=20,dive,min=1,max=120"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty" validate:"omitempty,max=20,dive,min=1,max=120"`
}
