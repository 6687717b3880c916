package auth

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
)

const (
	tokenIssuer   = "invitarr-server"
	tokenAudience = "invitarr-step"
)

// ErrStepMismatch is returned when a valid token was issued for another step.
var ErrStepMismatch = errors.New("step token does not match step")

// StepTokenService issues and verifies step start tokens.
// A token records when the server presented a step, so timed steps never
// trust a client-reported clock.
type StepTokenService struct {
	symmetricKey paseto.V4SymmetricKey
	lifetime     time.Duration
	now          func() time.Time
}

// NewStepTokenService creates a token service from a 64-character hex key.
// lifetime bounds how long a presented step stays verifiable.
func NewStepTokenService(keyHex string, lifetime time.Duration) (*StepTokenService, error) {
	if len(keyHex) != keyHexLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d hex characters (%d bytes), got %d", keyHexLength, keyLength, len(keyHex))
	}

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string for PASETO key: %w", err)
	}

	key, err := paseto.V4SymmetricKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &StepTokenService{
		symmetricKey: key,
		lifetime:     lifetime,
		now:          time.Now,
	}, nil
}

// Issue creates a v4.local token stating that stepID of redemptionID was
// presented at presentedAt.
func (s *StepTokenService) Issue(redemptionID, stepID string, presentedAt time.Time) string {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(redemptionID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.lifetime))

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("redemption_id", redemptionID)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("step_id", stepID)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("presented_at", presentedAt.UTC())

	return token.V4Encrypt(s.symmetricKey, nil)
}

// Verify decrypts a step token and checks that it belongs to redemptionID and stepID.
// Returns the server-recorded presentation time.
func (s *StepTokenService) Verify(tokenString, redemptionID, stepID string) (time.Time, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.Subject(redemptionID))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid step token: %w", err)
	}

	var claims StepClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse claims: %w", err)
	}
	if claims.RedemptionID != redemptionID || claims.StepID != stepID {
		return time.Time{}, ErrStepMismatch
	}

	return claims.PresentedAt, nil
}
