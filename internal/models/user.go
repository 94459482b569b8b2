package models

type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	KYCTier  int    `json:"kycTier"`
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingSuspended ListingStatus = "SUSPENDED"
	ListingSold      ListingStatus = "SOLD"
)

type ListingSummary struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Region   string        `json:"region"`
	District string        `json:"district,omitempty"`
	SellerID string        `json:"sellerId"`
	Status   ListingStatus `json:"status"`
}

// TransactionView is the full record returned to clients.
type TransactionView struct {
	*Transaction
	Fee          string          `json:"feeGhs"`
	SellerPayout string          `json:"sellerPayoutGhs"`
	Buyer        *UserSummary    `json:"buyer,omitempty"`
	Seller       *UserSummary    `json:"seller,omitempty"`
	Listing      *ListingSummary `json:"listing,omitempty"`

	// AvailableActions depends on the caller and is never cached.
	AvailableActions []string `json:"availableActions,omitempty"`
}
