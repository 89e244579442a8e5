package vault

import "time"

// Card is the raw card data accepted by Tokenize.
type Card struct {
	PAN         string `json:"pan"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}

// CardData is what Resolve hands to server-side callers. It never carries the CVV.
type CardData struct {
	PAN         string
	ExpiryMonth int
	ExpiryYear  int
	HolderName  string
}

// SecureCardInfo is the masked, display-safe projection of a token.
type SecureCardInfo struct {
	LastFour    string    `json:"last_four"`
	Brand       string    `json:"brand"`
	ExpiryMonth int       `json:"expiry_month"`
	ExpiryYear  int       `json:"expiry_year"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Token is the result of tokenization.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// record is the stored form of a token. It stays inside the vault.
type record struct {
	PAN         string    `json:"pan"`
	ExpiryMonth int       `json:"expiry_month"`
	ExpiryYear  int       `json:"expiry_year"`
	CVV         string    `json:"cvv"`
	HolderName  string    `json:"holder_name"`
	Brand       string    `json:"brand"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (r *record) cardData() *CardData {
	return &CardData{
		PAN:         r.PAN,
		ExpiryMonth: r.ExpiryMonth,
		ExpiryYear:  r.ExpiryYear,
		HolderName:  r.HolderName,
	}
}

func (r *record) secureInfo() *SecureCardInfo {
	return &SecureCardInfo{
		LastFour:    r.PAN[len(r.PAN)-4:],
		Brand:       r.Brand,
		ExpiryMonth: r.ExpiryMonth,
		ExpiryYear:  r.ExpiryYear,
		IssuedAt:    r.IssuedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
