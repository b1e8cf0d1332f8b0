// Package contract defines the data shapes exchanged between generation stages
// and with API callers. Every type here is pure data: field shapes, defaults
// (`default` tags) and constraints (`validate` tags) are interpreted by the
// generic validator in internal/generator/validator.
package contract

// Difficulty is the realism tier requested for a simulation.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// AllowedDifficulties is the closed set of difficulty tiers.
var AllowedDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Channel selects which simulated delivery channel a request targets.
type Channel string

const (
	// ChannelEmail generates a phishing email and its landing pages.
	ChannelEmail Channel = "email"

	// ChannelSMS generates a smishing message set and its landing pages.
	ChannelSMS Channel = "sms"
)

// AllowedChannels is the closed set of channels.
var AllowedChannels = []Channel{ChannelEmail, ChannelSMS}

// IsValidChannel checks if a channel is in the approved list.
func IsValidChannel(c Channel) bool {
	for _, a := range AllowedChannels {
		if a == c {
			return true
		}
	}
	return false
}

// DefaultLanguage returns the language applied when a request omits one.
func DefaultLanguage(c Channel) string {
	switch c {
	case ChannelSMS:
		return "en"
	default:
		return "en-gb"
	}
}

// Method is how a simulated victim is expected to interact with the lure.
type Method string

const (
	MethodClickOnly      Method = "Click-Only"
	MethodDataSubmission Method = "Data-Submission"
)

// ScenarioKind is the router discriminant fixed on a Blueprint.
type ScenarioKind string

const (
	// KindQR lures the target with a QR code image (quishing).
	KindQR ScenarioKind = "qr"

	// KindLink lures the target with a traditional link or button.
	KindLink ScenarioKind = "link"
)

// AllowedKinds is the closed set of scenario kinds.
var AllowedKinds = []ScenarioKind{KindQR, KindLink}

// IsValidKind checks if a kind is in the approved list.
func IsValidKind(k ScenarioKind) bool {
	for _, a := range AllowedKinds {
		if a == k {
			return true
		}
	}
	return false
}

// PageType identifies a landing page inside an ArtifactSet.
type PageType string

const (
	PageLogin   PageType = "login"
	PageSuccess PageType = "success"
	PageInfo    PageType = "info"
)

// AllowedPageTypes is the closed set of landing page types.
var AllowedPageTypes = []PageType{PageLogin, PageSuccess, PageInfo}

// Merge tags resolved by downstream post-processing. Generated content must
// carry them verbatim.
const (
	MergeTagPhishingURL = "{PHISHINGURL}"
	MergeTagQRCodeImage = "{QRCODEURLIMAGE}"
	MergeTagFirstName   = "{FIRSTNAME}"
	MergeTagLogo        = "{CUSTOMMAINLOGO}"
)
