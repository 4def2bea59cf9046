package models

// MarketPrice is the current market quote of a listed IPO.
type MarketPrice struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	IssuePrice    float64 `json:"issue_price"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	IsPositive    bool    `json:"is_positive"`
}
