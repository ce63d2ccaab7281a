//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Falcon decision
// and notification service.
//
// These tests verify the COMPLETE request pipeline:
//
//	Request → API key gate → Engine/Service → Repository → Response
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// SETUP:
//
//  1. Start the server with a bootstrap key:
//     FALCON_API_KEY=integration-key go run cmd/falcon/main.go
//  2. Point the tests at it:
//     FALCON_TEST_URL=http://localhost:8080 FALCON_TEST_KEY=integration-key
//
// The decision tests use fresh national IDs per run because an approved
// application locks the product for 5 days.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	APIKey  string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("FALCON_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	apiKey := os.Getenv("FALCON_TEST_KEY")
	if apiKey == "" {
		apiKey = "integration-key"
	}
	return TestConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

// freshNationalID returns an ID unlikely to collide with earlier runs.
func freshNationalID() string {
	return fmt.Sprintf("2%09d", rand.Int64N(1000000000))
}

// ============================================================================
// API Request/Response Types (matching Falcon's API contract)
// ============================================================================

type DecisionRequest struct {
	NationalID  string  `json:"national_id"`
	Salary      float64 `json:"salary"`
	Liabilities float64 `json:"liabilities"`
	Expenses    float64 `json:"expenses"`
}

type CardResponse struct {
	Decision       string  `json:"decision"`
	ApplicationNo  int64   `json:"application_number"`
	CardType       string  `json:"card_type"`
	CreditLimit    float64 `json:"credit_limit"`
	MinCreditLimit float64 `json:"min_credit_limit"`
	MaxCreditLimit float64 `json:"max_credit_limit"`
	Debug          struct {
		PaymentCapacity float64 `json:"payment_capacity"`
		FinalLimit      float64 `json:"final_limit"`
	} `json:"debug"`
}

type LoanResponse struct {
	Decision       string  `json:"decision"`
	ApplicationNo  int64   `json:"application_number"`
	FinanceAmount  float64 `json:"finance_amount"`
	Tenure         int     `json:"tenure"`
	EMI            float64 `json:"emi"`
	TotalRepayment float64 `json:"total_repayment"`
	Interest       float64 `json:"interest"`
}

type ErrorResponse struct {
	Status        string   `json:"status"`
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	MessageAr     string   `json:"message_ar"`
	ApplicationNo int64    `json:"application_no"`
	CurrentStatus string   `json:"current_status"`
	Errors        []string `json:"errors"`
}

type SendRequest struct {
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
	NationalID string `json:"national_id,omitempty"`
}

type SendResponse struct {
	Status          string `json:"status"`
	TemplateID      string `json:"template_id"`
	TotalRecipients int    `json:"total_recipients"`
	SuccessfulSends int    `json:"successful_sends"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func post(t *testing.T, config TestConfig, path string, reqBody any) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", config.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	return resp.StatusCode, respBody
}

// ============================================================================
// SCENARIO 1: Card decision approval
// ============================================================================

func TestCardDecision_Approved(t *testing.T) {
	/*
	   SCENARIO: salary=5000, liabilities=500, expenses=300

	   EXPECTED: capacity = min(750, 4200) = 500; limit = min(10000, 10000)
	   = 10000, within bounds, multiple of 100, below the 17500 GOLD
	   threshold → REWARD card with limit 10000.
	*/
	config := getTestConfig()

	status, body := post(t, config, "/decision/card", DecisionRequest{
		NationalID:  freshNationalID(),
		Salary:      5000,
		Liabilities: 500,
		Expenses:    300,
	})

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result CardResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}

	if result.Decision != "approved" {
		t.Errorf("Expected decision approved, got %s", result.Decision)
	}
	if result.CreditLimit != 10000 {
		t.Errorf("Expected credit_limit 10000, got %.2f", result.CreditLimit)
	}
	if result.CardType != "REWARD" {
		t.Errorf("Expected REWARD card, got %s", result.CardType)
	}
	if result.Debug.FinalLimit != result.CreditLimit {
		t.Errorf("Debug final_limit %.2f disagrees with credit_limit %.2f",
			result.Debug.FinalLimit, result.CreditLimit)
	}

	t.Logf("✓ Card approved: no=%d, type=%s, limit=%.0f",
		result.ApplicationNo, result.CardType, result.CreditLimit)
}

// ============================================================================
// SCENARIO 2: Active application lock
// ============================================================================

func TestCardDecision_ActiveApplicationBlocks(t *testing.T) {
	/*
	   SCENARIO: Approve once, then immediately apply again with the same
	   national ID.

	   EXPECTED: second request returns 409 ACTIVE_APPLICATION_EXISTS with
	   the first application's number and pending status, and performs no
	   new insert.
	*/
	config := getTestConfig()
	nationalID := freshNationalID()

	status, body := post(t, config, "/decision/card", DecisionRequest{
		NationalID: nationalID,
		Salary:     6000,
	})
	if status != http.StatusOK {
		t.Fatalf("First application failed: %d %s", status, string(body))
	}

	var first CardResponse
	json.Unmarshal(body, &first)

	status, body = post(t, config, "/decision/card", DecisionRequest{
		NationalID: nationalID,
		Salary:     6000,
	})
	if status != http.StatusConflict {
		t.Fatalf("Expected 409 for repeat application, got %d: %s", status, string(body))
	}

	var conflict ErrorResponse
	if err := json.Unmarshal(body, &conflict); err != nil {
		t.Fatalf("Failed to unmarshal conflict: %v", err)
	}

	if conflict.Code != "ACTIVE_APPLICATION_EXISTS" {
		t.Errorf("Expected ACTIVE_APPLICATION_EXISTS, got %s", conflict.Code)
	}
	if conflict.ApplicationNo != first.ApplicationNo {
		t.Errorf("Expected conflict to cite application %d, got %d",
			first.ApplicationNo, conflict.ApplicationNo)
	}
	if conflict.MessageAr == "" {
		t.Error("Expected bilingual conflict message")
	}

	t.Logf("✓ Lock enforced: application %d blocks for 5 days", first.ApplicationNo)
}

// ============================================================================
// SCENARIO 3: Loan worked example
// ============================================================================

func TestLoanDecision_WorkedExample(t *testing.T) {
	/*
	   SCENARIO: salary=10000, no liabilities or expenses.

	   EXPECTED: dbr_emi=1500, max_emi=10000, allowed=1500, total=90000,
	   principal=90000/1.8=50000 (within bounds) → finance 50000, emi 1500,
	   repayment 90000, interest 40000 over 60 months.
	*/
	config := getTestConfig()

	status, body := post(t, config, "/decision/loan", DecisionRequest{
		NationalID: freshNationalID(),
		Salary:     10000,
	})

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result LoanResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if result.FinanceAmount != 50000 {
		t.Errorf("Expected finance_amount 50000, got %.2f", result.FinanceAmount)
	}
	if result.EMI != 1500 {
		t.Errorf("Expected emi 1500, got %.2f", result.EMI)
	}
	if result.TotalRepayment != 90000 {
		t.Errorf("Expected total_repayment 90000, got %.2f", result.TotalRepayment)
	}
	if result.Interest != 40000 {
		t.Errorf("Expected interest 40000, got %.2f", result.Interest)
	}
	if result.Tenure != 60 {
		t.Errorf("Expected tenure 60, got %d", result.Tenure)
	}

	t.Logf("✓ Loan approved: no=%d, amount=%.0f, emi=%.0f",
		result.ApplicationNo, result.FinanceAmount, result.EMI)
}

// ============================================================================
// SCENARIO 4: Salary floor
// ============================================================================

func TestLoanDecision_BelowMinimumSalary(t *testing.T) {
	/*
	   SCENARIO: salary=3999, just under the 4000 floor.

	   EXPECTED: 400 VALIDATION_ERROR with the exact salary message.
	*/
	config := getTestConfig()

	status, body := post(t, config, "/decision/loan", DecisionRequest{
		NationalID: freshNationalID(),
		Salary:     3999,
	})

	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", status, string(body))
	}

	var result ErrorResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if result.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %s", result.Code)
	}
	if result.Message != "Minimum salary must be 4000." {
		t.Errorf("Unexpected message: %q", result.Message)
	}

	t.Logf("✓ Salary floor enforced: %s", result.Message)
}

// ============================================================================
// SCENARIO 5: Notification send requires an existing customer
// ============================================================================

func TestNotificationSend_NoTargets(t *testing.T) {
	/*
	   SCENARIO: Send to a national ID with no customer row.

	   EXPECTED: 404 NO_TARGET_USERS. (Decision applications do not create
	   customer rows, so a fresh ID has no inbox.)
	*/
	config := getTestConfig()

	status, body := post(t, config, "/notifications/send", SendRequest{
		Title:      "Integration check",
		Body:       "Should find nobody",
		NationalID: freshNationalID(),
	})

	if status != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", status, string(body))
	}

	var result ErrorResponse
	json.Unmarshal(body, &result)
	if result.Code != "NO_TARGET_USERS" {
		t.Errorf("Expected NO_TARGET_USERS, got %s", result.Code)
	}

	t.Logf("✓ Empty audience rejected: %s", result.Code)
}

// ============================================================================
// SCENARIO 6: API key gate
// ============================================================================

func TestMissingAPIKey_Unauthorized(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(DecisionRequest{NationalID: freshNationalID(), Salary: 5000})
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/decision/card", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-API-Key header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without api key, got %d", resp.StatusCode)
	}

	t.Logf("✓ API key gate: missing key → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Application lookup round-trip
// ============================================================================

func TestApplicationLookup_RoundTrip(t *testing.T) {
	/*
	   SCENARIO: Approve a loan, then read it back via the portal endpoint.
	*/
	config := getTestConfig()
	nationalID := freshNationalID()

	status, body := post(t, config, "/decision/loan", DecisionRequest{
		NationalID: nationalID,
		Salary:     8000,
	})
	if status != http.StatusOK {
		t.Fatalf("Loan application failed: %d %s", status, string(body))
	}

	var loan LoanResponse
	json.Unmarshal(body, &loan)

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/applications/loan/"+nationalID, nil)
	httpReq.Header.Set("X-API-Key", config.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from lookup, got %d", resp.StatusCode)
	}

	var app struct {
		ApplicationNo int64   `json:"applicationNo"`
		NationalID    string  `json:"nationalId"`
		Status        string  `json:"status"`
		FinanceAmount float64 `json:"financeAmount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&app); err != nil {
		t.Fatalf("Failed to decode application: %v", err)
	}

	if app.ApplicationNo != loan.ApplicationNo {
		t.Errorf("Expected application %d, got %d", loan.ApplicationNo, app.ApplicationNo)
	}
	if app.Status != "pending" {
		t.Errorf("Expected pending status, got %s", app.Status)
	}

	t.Logf("✓ Round-trip: application %d persisted with status %s",
		app.ApplicationNo, app.Status)
}
