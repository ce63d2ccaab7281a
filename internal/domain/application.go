package domain

import "time"

// Product identifies which finance product an application is for.
type Product string

const (
	ProductLoan Product = "loan"
	ProductCard Product = "card"
)

// Application statuses as stored in the application tables.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "Rejected"
	StatusDeclined = "Declined"
)

// LoanApplication is a row in loan_application_details.
type LoanApplication struct {
	ID             int64     `json:"id"`
	ApplicationNo  int64     `json:"applicationNo"`
	NationalID     string    `json:"nationalId"`
	Status         string    `json:"status"`
	StatusDate     time.Time `json:"statusDate"`
	FinanceAmount  float64   `json:"financeAmount"`
	Tenure         int       `json:"tenure"` // months
	EMI            float64   `json:"emi"`
	TotalRepayment float64   `json:"totalRepayment"`
	Interest       float64   `json:"interest"`
	Consent        bool      `json:"consentStatus"`
	NafathStatus   string    `json:"nafathStatus"`
	Remarks        string    `json:"remarks,omitempty"`
}

// CardApplication is a row in card_application_details.
type CardApplication struct {
	ID            int64     `json:"id"`
	ApplicationNo int64     `json:"applicationNo"`
	NationalID    string    `json:"nationalId"`
	Status        string    `json:"status"`
	StatusDate    time.Time `json:"statusDate"`
	CardType      string    `json:"cardType"` // "GOLD" or "REWARD"
	CardLimit     float64   `json:"cardLimit"`
	Consent       bool      `json:"consentStatus"`
	NafathStatus  string    `json:"nafathStatus"`
	Remarks       string    `json:"remarks,omitempty"`
}

// ActiveApplication is the minimal view the decision gate needs:
// the most recent non-terminal application inside the lock window.
type ActiveApplication struct {
	ApplicationNo int64     `json:"applicationNo"`
	Status        string    `json:"status"`
	StatusDate    time.Time `json:"statusDate"`
}
