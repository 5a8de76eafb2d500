package decision

import (
	"errors"
	"strings"
	"testing"

	"github.com/efreitasn/marketsim/internal/domain"
)

func testState() State {
	return State{
		ParticipantID: 1,
		Day:           1,
		Cash:          100000, // $1000.00
		Holdings:      map[string]int64{"A": 10},
		Quotes:        []domain.Quote{{Symbol: "A", Price: 3000}, {Symbol: "B", Price: 4000}},
		MaxLoan:       500000,
		LoanTerms:     []int{22, 44, 66},
	}
}

func wantValidation(t *testing.T, err error, fragment string) {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !strings.Contains(ve.Message, fragment) {
		t.Errorf("message %q does not mention %q", ve.Message, fragment)
	}
}

func TestCheckLoan(t *testing.T) {
	var v Validator
	tests := []struct {
		name     string
		text     string
		want     domain.LoanDecision
		errMatch string
	}{
		{"no", `I'd rather not. {"loan": "no"}`, domain.NoLoan{}, ""},
		{"no uppercase", `{"loan": "NO"}`, domain.NoLoan{}, ""},
		{"yes", `{"loan": "yes", "loan_type": 1, "amount": 1000}`, domain.LoanRequest{Type: 1, Amount: 100000}, ""},
		{"yes with cents", `{"loan": "yes", "loan_type": 0, "amount": 12.5}`, domain.LoanRequest{Type: 0, Amount: 1250}, ""},
		{"no braces", `no loan today`, nil, "Wrong json format"},
		{"two objects", `{"loan": "no"} {"loan": "no"}`, nil, "Wrong json format"},
		{"bad json", `{"loan": no}`, nil, "Illegal json format"},
		{"missing key", `{"borrow": "no"}`, nil, "Key 'loan' not in response"},
		{"bad answer", `{"loan": "maybe"}`, nil, "should be yes or no"},
		{"no with extras", `{"loan": "no", "amount": 5}`, nil, "Don't include loan_type or amount"},
		{"yes missing amount", `{"loan": "yes", "loan_type": 0}`, nil, "Should include loan_type and amount"},
		{"bad type", `{"loan": "yes", "loan_type": 3, "amount": 10}`, nil, "'loan_type'"},
		{"fractional type", `{"loan": "yes", "loan_type": 0.5, "amount": 10}`, nil, "'loan_type'"},
		{"zero amount", `{"loan": "yes", "loan_type": 0, "amount": 0}`, nil, "'amount'"},
		{"over max", `{"loan": "yes", "loan_type": 0, "amount": 5000.01}`, nil, "5000.00"},
		{"amount beyond int64", `{"loan": "yes", "loan_type": 0, "amount": 184467440737095516.17}`, nil, "5000.00"},
		{"type beyond int64", `{"loan": "yes", "loan_type": 18446744073709551616, "amount": 10}`, nil, "'loan_type'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.CheckLoan(tt.text, 3, 500000)
			if tt.errMatch != "" {
				wantValidation(t, err, tt.errMatch)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CheckLoan() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCheckAction(t *testing.T) {
	var v Validator
	tests := []struct {
		name     string
		text     string
		want     domain.Intent
		errMatch string
	}{
		{"no", `{"action_type": "no"}`, domain.NoAction{}, ""},
		{"buy", `{"action_type": "buy", "stock": "B", "amount": 25, "price": 40}`, domain.BuyOrder{Symbol: "B", Quantity: 25, Price: 4000}, ""},
		{"buy all cash", `{"action_type": "buy", "stock": "A", "amount": 100, "price": 10}`, domain.BuyOrder{Symbol: "A", Quantity: 100, Price: 1000}, ""},
		{"sell", `{"action_type": "Sell", "stock": "A", "amount": 10, "price": 30.25}`, domain.SellOrder{Symbol: "A", Quantity: 10, Price: 3025}, ""},
		{"missing action", `{"stock": "A"}`, nil, "Key 'action_type' not in response"},
		{"bad action", `{"action_type": "hold"}`, nil, "'buy', 'sell' or 'no'"},
		{"no with stock", `{"action_type": "no", "stock": "A"}`, nil, "Don't include stock or amount"},
		{"missing price", `{"action_type": "buy", "stock": "A", "amount": 1}`, nil, "Should include stock, amount and price"},
		{"unknown stock", `{"action_type": "buy", "stock": "C", "amount": 1, "price": 1}`, nil, "A, B"},
		{"negative price", `{"action_type": "buy", "stock": "A", "amount": 1, "price": -1}`, nil, "'price' should be positive"},
		{"sub-cent price", `{"action_type": "buy", "stock": "A", "amount": 1, "price": 30.001}`, nil, "2 decimal places"},
		{"fractional amount", `{"action_type": "buy", "stock": "A", "amount": 1.5, "price": 30}`, nil, "should be integer"},
		{"buy over cash", `{"action_type": "buy", "stock": "A", "amount": 101, "price": 10}`, nil, "1000.00"},
		{"sell over holding", `{"action_type": "sell", "stock": "A", "amount": 11, "price": 30}`, nil, "hold is 10"},
		{"buy value overflows", `{"action_type": "buy", "stock": "A", "amount": 922337203685477581, "price": 1.00}`, nil, "1000.00"},
		{"buy amount beyond int64", `{"action_type": "buy", "stock": "A", "amount": 18446744073709551617, "price": 0.01}`, nil, "1000.00"},
		{"price beyond int64", `{"action_type": "buy", "stock": "A", "amount": 1, "price": 184467440737095516.17}`, nil, "'price'"},
		{"sell amount beyond int64", `{"action_type": "sell", "stock": "A", "amount": 18446744073709551626, "price": 30}`, nil, "hold is 10"},
		{"sell unheld", `{"action_type": "sell", "stock": "B", "amount": 1, "price": 40}`, nil, "hold is 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.CheckAction(tt.text, testState())
			if tt.errMatch != "" {
				wantValidation(t, err, tt.errMatch)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CheckAction() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCheckEstimate(t *testing.T) {
	var v Validator
	symbols := []string{"A", "B"}

	est, err := v.CheckEstimate(`Tomorrow: {"loan": "no", "buy_A": "yes", "buy_B": "no", "sell_A": "no", "sell_B": "yes"}`, symbols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Loan || !est.Buy["A"] || est.Buy["B"] || est.Sell["A"] || !est.Sell["B"] {
		t.Errorf("unexpected estimate %+v", est)
	}

	_, err = v.CheckEstimate(`{"loan": "no", "buy_A": "yes"}`, symbols)
	wantValidation(t, err, "buy_B")

	_, err = v.CheckEstimate(`{"loan": "maybe", "buy_A": "yes", "buy_B": "no", "sell_A": "no", "sell_B": "yes"}`, symbols)
	wantValidation(t, err, "'yes' or 'no'")

	_, err = v.CheckEstimate(`{"loan": "no", "buy_A": true, "buy_B": "no", "sell_A": "no", "sell_B": "yes"}`, symbols)
	wantValidation(t, err, "'yes' or 'no'")
}

func TestCheckMessage(t *testing.T) {
	var v Validator
	if msg, err := v.CheckMessage("  B looks cheap  \n"); err != nil || msg != "B looks cheap" {
		t.Errorf("CheckMessage() = %q, %v", msg, err)
	}
	_, err := v.CheckMessage(" \n\t")
	wantValidation(t, err, "empty")
}
