package facilitator

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/porus-labs/porus/internal/x402"
)

// verifyExact runs the off-chain checks for the exact scheme: the payload must
// target the declared requirements, fit within the maximum amount, sit inside
// its authorization window, and carry a signature. It never executes a
// transfer.
func verifyExact(payload x402.PaymentPayload, reqs x402.PaymentRequirements, now time.Time) x402.VerifyResponse {
	invalid := func(reason string) x402.VerifyResponse {
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason}
	}

	if payload.Scheme != x402.SchemeExact || reqs.Scheme != x402.SchemeExact {
		return invalid("unsupported_scheme")
	}
	if payload.Network != reqs.Network {
		return invalid("network_mismatch")
	}

	auth := payload.Payload.Authorization
	if !strings.EqualFold(auth.To, reqs.PayTo) {
		return invalid("recipient_mismatch")
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Sign() <= 0 {
		return invalid("invalid_authorization_value")
	}
	if reqs.MaxAmountRequired != "" {
		maxAmount, ok := new(big.Int).SetString(reqs.MaxAmountRequired, 10)
		if !ok {
			return invalid("invalid_max_amount")
		}
		if value.Cmp(maxAmount) > 0 {
			return invalid("amount_exceeds_maximum")
		}
	}

	if reason := checkWindow(auth, now); reason != "" {
		return invalid(reason)
	}
	if payload.Payload.Signature == "" {
		return invalid("missing_signature")
	}

	return x402.VerifyResponse{IsValid: true, Payer: auth.From}
}

func checkWindow(auth x402.Authorization, now time.Time) string {
	unix := now.Unix()
	if auth.ValidAfter != "" {
		after, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
		if err != nil {
			return "invalid_authorization_window"
		}
		if unix < after {
			return "authorization_not_yet_valid"
		}
	}
	if auth.ValidBefore != "" {
		before, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
		if err != nil {
			return "invalid_authorization_window"
		}
		if unix >= before {
			return "authorization_expired"
		}
	}
	return ""
}
