package model

// CartFetchResult is the outcome of retrieving a storefront's cart page.
type CartFetchResult struct {
	Success       bool   `json:"success"`
	StoreName     string `json:"storeName"`
	VariantID     int64  `json:"variantId,omitempty"`
	RedirectCount int    `json:"redirectCount"`
	FinalURL      string `json:"finalUrl,omitempty"`
	HTML          string `json:"html,omitempty"`
	ErrorMessage  string `json:"message,omitempty"`
}
