package domain

import "time"

// Customer is a registered mobile-app account holder, keyed by national ID.
type Customer struct {
	NationalID       string    `json:"nationalId"`
	FirstNameEn      string    `json:"firstNameEn"`
	FamilyNameEn     string    `json:"familyNameEn"`
	FirstNameAr      string    `json:"firstNameAr"`
	FamilyNameAr     string    `json:"familyNameAr"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Salary           float64   `json:"salary"`
	EmploymentStatus string    `json:"employmentStatus"`
	EmployerName     string    `json:"employerName"`
	Language         string    `json:"language"` // "en" or "ar"
	Consent          bool      `json:"consent"`
	CreatedAt        time.Time `json:"createdAt"`
}
