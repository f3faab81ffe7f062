package funding

// TopUpRequest captures user-provided data to buy coins with a card.
type TopUpRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     int64  `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// TopUpResponse represents the API response for a top-up.
type TopUpResponse struct {
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	Coins             int64  `json:"coins"`
	Balance           int64  `json:"balance"`
	AcquirerReference string `json:"acquirer_reference,omitempty"`
	Replayed          bool   `json:"replayed"`
}
