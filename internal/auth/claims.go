package auth

import "time"

// StepClaims are the claims carried by a step token.
// v4.local tokens are encrypted, so redeemers cannot read or forge them.
type StepClaims struct {
	RedemptionID string    `json:"redemption_id"`
	StepID       string    `json:"step_id"`
	PresentedAt  time.Time `json:"presented_at"`

	Issuer     string    `json:"iss"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	IssuedAt   time.Time `json:"iat"`
}
