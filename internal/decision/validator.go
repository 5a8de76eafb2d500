package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Validator turns a decision service's free-text reply into a typed
// decision. The reply must contain exactly one JSON object. Every failure is
// a *domain.ValidationError whose message can be sent back as feedback.
type Validator struct{}

func invalid(format string, args ...any) error {
	return &domain.ValidationError{Message: fmt.Sprintf(format, args...)}
}

// extractObject finds the single {...} object in text and decodes it.
func extractObject(text string) (map[string]json.RawMessage, error) {
	start, end := strings.Index(text, "{"), strings.Index(text, "}")
	if strings.Count(text, "{") != 1 || strings.Count(text, "}") != 1 || end < start {
		return nil, invalid("Wrong json format, there is no {} or more than one {} in response.")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, invalid("Illegal json format.")
	}
	return obj, nil
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decimalField(obj map[string]json.RawMessage, key string) (decimal.Decimal, bool) {
	raw, ok := obj[key]
	if !ok {
		return decimal.Decimal{}, false
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// CheckLoan parses a loan decision. Amounts are dollars and may not exceed
// maxLoan cents.
//
//	{"loan": "yes", "loan_type": 1, "amount": 1000}
//	{"loan": "no"}
func (Validator) CheckLoan(text string, loanTypes int, maxLoan int64) (domain.LoanDecision, error) {
	obj, err := extractObject(text)
	if err != nil {
		return nil, err
	}
	answer, ok := stringField(obj, "loan")
	if !ok {
		return nil, invalid("Key 'loan' not in response.")
	}

	_, hasType := obj["loan_type"]
	_, hasAmount := obj["amount"]

	switch strings.ToLower(answer) {
	case "no":
		if hasType || hasAmount {
			return nil, invalid("Don't include loan_type or amount in response if value of key 'loan' is no.")
		}
		return domain.NoLoan{}, nil
	case "yes":
	default:
		return nil, invalid("Value of key 'loan' should be yes or no.")
	}

	if !hasType || !hasAmount {
		return nil, invalid("Should include loan_type and amount in response if value of key 'loan' is yes.")
	}
	typ, ok := decimalField(obj, "loan_type")
	if !ok || !typ.IsInteger() || typ.IsNegative() || typ.GreaterThanOrEqual(decimal.NewFromInt(int64(loanTypes))) {
		return nil, invalid("Value of key 'loan_type' should be an integer from 0 to %d.", loanTypes-1)
	}
	amountDollars, ok := decimalField(obj, "amount")
	if !ok {
		return nil, invalid("Value of key 'amount' should be a number.")
	}
	amount, err := domain.DecimalToCents(amountDollars)
	if err != nil || amount <= 0 || amount > maxLoan {
		return nil, invalid("Value of key 'amount' should be positive and not more than %s.", domain.FormatCents(maxLoan))
	}
	return domain.LoanRequest{Type: domain.LoanType(typ.IntPart()), Amount: amount}, nil
}

// CheckAction parses an order intent and checks it against what st can
// afford. Prices are dollars with at most two decimals.
//
//	{"action_type": "buy", "stock": "A", "amount": 10, "price": 30.5}
//	{"action_type": "no"}
func (Validator) CheckAction(text string, st State) (domain.Intent, error) {
	obj, err := extractObject(text)
	if err != nil {
		return nil, err
	}
	action, ok := stringField(obj, "action_type")
	if !ok {
		return nil, invalid("Key 'action_type' not in response.")
	}
	action = strings.ToLower(action)

	_, hasStock := obj["stock"]
	_, hasAmount := obj["amount"]
	_, hasPrice := obj["price"]

	switch action {
	case domain.ActionNone:
		if hasStock || hasAmount {
			return nil, invalid("Don't include stock or amount in response if value of key 'action_type' is no.")
		}
		return domain.NoAction{}, nil
	case domain.ActionBuy, domain.ActionSell:
	default:
		return nil, invalid("Value of key 'action_type' should be 'buy', 'sell' or 'no'.")
	}

	if !hasStock || !hasAmount || !hasPrice {
		return nil, invalid("Should include stock, amount and price in response if value of key 'action_type' is buy or sell.")
	}
	symbol, ok := stringField(obj, "stock")
	if !ok || st.Price(symbol) == 0 {
		return nil, invalid("Value of key 'stock' should be one of %s.", strings.Join(st.Symbols(), ", "))
	}
	priceDollars, ok := decimalField(obj, "price")
	if !ok {
		return nil, invalid("Value of key 'price' should be positive.")
	}
	price, err := domain.DecimalToCents(priceDollars)
	if err != nil {
		return nil, invalid("Value of key 'price' should be a positive amount with at most 2 decimal places.")
	}
	if price <= 0 {
		return nil, invalid("Value of key 'price' should be positive.")
	}
	qty, ok := decimalField(obj, "amount")
	if !ok || !qty.IsInteger() {
		return nil, invalid("Value of key 'amount' should be integer.")
	}

	if action == domain.ActionBuy {
		value := qty.Mul(decimal.NewFromInt(price))
		if !qty.IsPositive() || value.GreaterThan(decimal.NewFromInt(st.Cash)) {
			return nil, invalid("The cash you have now is %s, the value of 'amount' * 'price' should be positive and not exceed cash.", domain.FormatCents(st.Cash))
		}
		return domain.BuyOrder{Symbol: symbol, Quantity: qty.IntPart(), Price: price}, nil
	}

	held := st.Holdings[symbol]
	if !qty.IsPositive() || qty.GreaterThan(decimal.NewFromInt(held)) {
		return nil, invalid("The amount of stock you hold is %d, the value of 'amount' should be positive and not exceed the amount of stock you hold.", held)
	}
	return domain.SellOrder{Symbol: symbol, Quantity: qty.IntPart(), Price: price}, nil
}

// CheckEstimate parses next-day intentions: "loan" plus "buy_<S>" and
// "sell_<S>" for every symbol, each "yes" or "no".
func (Validator) CheckEstimate(text string, symbols []string) (domain.Estimate, error) {
	obj, err := extractObject(text)
	if err != nil {
		return domain.Estimate{}, err
	}

	required := []string{"loan"}
	for _, s := range symbols {
		required = append(required, "buy_"+s, "sell_"+s)
	}
	for _, key := range required {
		if _, ok := obj[key]; !ok {
			return domain.Estimate{}, invalid("Keys %s should be in response.", strings.Join(required, ", "))
		}
	}

	answers := make(map[string]bool, len(obj))
	for key := range obj {
		v, ok := stringField(obj, key)
		if !ok || (v != "yes" && v != "no") {
			return domain.Estimate{}, invalid("Value of all keys should be 'yes' or 'no'.")
		}
		answers[key] = v == "yes"
	}

	est := domain.Estimate{
		Loan: answers["loan"],
		Buy:  make(map[string]bool, len(symbols)),
		Sell: make(map[string]bool, len(symbols)),
	}
	for _, s := range symbols {
		est.Buy[s] = answers["buy_"+s]
		est.Sell[s] = answers["sell_"+s]
	}
	return est, nil
}

// CheckMessage accepts any non-blank forum post.
func (Validator) CheckMessage(text string) (string, error) {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return "", invalid("Message should not be empty.")
	}
	return msg, nil
}
