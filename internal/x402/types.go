// Package x402 holds the x402 v1 wire types shared by the gateway, the
// settlement client, and the facilitator, together with network-family
// resolution for the supported ledger families.
package x402

// Version is the x402 protocol version spoken on every surface.
const Version = 1

// SchemeExact is the only payment scheme this system accepts.
const SchemeExact = "exact"

// PaymentRequirements describes what a payer must satisfy to access a
// protected resource. Field set follows the x402 v1 shape.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentPayload is the caller-supplied half of a payment assertion: a signed
// transfer authorization for the exact scheme.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// ExactPayload carries the signature over an ERC-3009-style authorization.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is the transfer authorization signed by the payer.
// Numeric fields travel as decimal strings.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// VerifyRequest is the body of facilitator verify and settle calls.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse reports whether a payment assertion would settle, without
// executing a transfer.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's settlement outcome.
type SettleResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ID              string `json:"id,omitempty"`
	Network         string `json:"network,omitempty"`
	Payer           string `json:"payer,omitempty"`
	Error           string `json:"error,omitempty"`
}

// SettlementID returns the identifier recorded in issued credentials:
// the transaction hash when present, else the facilitator-assigned id.
func (r *SettleResponse) SettlementID() string {
	if r.TransactionHash != "" {
		return r.TransactionHash
	}
	return r.ID
}

// SupportedKind is one entry of the facilitator's supported list.
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SupportedResponse is the body of GET /supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
