package settings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Setting keys in platform_settings.
const (
	KeyPayout   = "payout"
	KeyChat     = "chat"
	KeyBranding = "branding"
)

type Payout struct {
	MinPayout decimal.Decimal `json:"min_payout"`
	// EnabledMethods restricts payout methods; empty means any non-empty method.
	EnabledMethods []string `json:"enabled_methods"`
}

// AllowsMethod reports whether method may be used for a payout request.
func (p Payout) AllowsMethod(method string) bool {
	if method == "" {
		return false
	}
	if len(p.EnabledMethods) == 0 {
		return true
	}
	for _, m := range p.EnabledMethods {
		if m == method {
			return true
		}
	}
	return false
}

type Chat struct {
	WelcomeMessage string `json:"welcome_message"`
	// ClosingMessage may contain {reason}, replaced by the close reason.
	ClosingMessage string `json:"closing_message"`
}

type Branding struct {
	PlatformName string `json:"platform_name"`
	SupportEmail string `json:"support_email,omitempty"`
}

// Record is a stored setting value.
type Record struct {
	Key       string    `json:"key" db:"key"`
	Value     []byte    `json:"value" db:"value"`
	UpdatedBy string    `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func defaultPayout() Payout {
	return Payout{MinPayout: decimal.NewFromInt(10)}
}

func defaultChat() Chat {
	return Chat{
		WelcomeMessage: "Thanks for reaching out! A support agent will be with you shortly.",
		ClosingMessage: "This chat has been closed: {reason}. Start a new conversation any time.",
	}
}

func defaultBranding() Branding {
	return Branding{PlatformName: "Dropship Platform"}
}
