package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Decider kinds.
const (
	DeciderRandom = "random"
	DeciderRemote = "remote"
)

// InstrumentConfig describes one traded instrument at the start of a run.
type InstrumentConfig struct {
	Symbol   string
	Price    int64 // cents
	Issuance int64 // shares the issuer still has to sell
}

// EventConfig is a scripted rate change announced on the forum.
type EventConfig struct {
	Day     int // 0 disables the event
	Rates   []decimal.Decimal
	Message string
}

// Config holds all runtime configuration for the market simulation.
type Config struct {
	Port            int
	LogLevel        string
	ServeAPI        bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Participants int
	Days         int
	Sessions     int
	Seed         uint64

	Instruments []InstrumentConfig
	MinProperty int64 // cents
	MaxProperty int64 // cents

	LoanTerms          []int
	LoanRates          []decimal.Decimal
	RepaymentDays      []int
	MaxLoanRatio       decimal.Decimal
	OverdraftTolerance int64 // cents
	Events             []EventConfig

	Decider             string
	DecisionURL         string
	DecisionTimeout     time.Duration
	DecisionAttempts    int
	DecisionConcurrency int

	RecordsPath string
}

// LoadEnvFile loads variables from a .env file into the environment without
// overriding ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	cfg.LogLevel = getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}

	if cfg.ServeAPI, err = getBool("SERVE_API", false); err != nil {
		return nil, fmt.Errorf("invalid SERVE_API: %w", err)
	}

	if cfg.ReadTimeout, err = getDuration("READ_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}
	if cfg.IdleTimeout, err = getDuration("IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	if err := loadRun(cfg); err != nil {
		return nil, err
	}
	if err := loadInstruments(cfg); err != nil {
		return nil, err
	}
	if err := loadPolicy(cfg); err != nil {
		return nil, err
	}
	if err := loadDecider(cfg); err != nil {
		return nil, err
	}

	cfg.RecordsPath = getStr("RECORDS_PATH", "")

	return cfg, nil
}

func loadRun(cfg *Config) error {
	var err error

	if cfg.Participants, err = getInt("PARTICIPANTS", 20); err != nil {
		return fmt.Errorf("invalid PARTICIPANTS: %w", err)
	}
	if cfg.Participants <= 0 {
		return fmt.Errorf("invalid PARTICIPANTS: %w", domain.ErrNoParticipants)
	}

	if cfg.Days, err = getInt("DAYS", 264); err != nil {
		return fmt.Errorf("invalid DAYS: %w", err)
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("invalid DAYS: must be > 0, got %d", cfg.Days)
	}

	if cfg.Sessions, err = getInt("SESSIONS", 3); err != nil {
		return fmt.Errorf("invalid SESSIONS: %w", err)
	}
	if cfg.Sessions <= 0 {
		return fmt.Errorf("invalid SESSIONS: must be > 0, got %d", cfg.Sessions)
	}

	if cfg.Seed, err = getUint64("SEED", 0); err != nil {
		return fmt.Errorf("invalid SEED: %w", err)
	}
	return nil
}

func loadInstruments(cfg *Config) error {
	defaults := []struct {
		symbol string
		price  string
	}{
		{"A", "30"},
		{"B", "40"},
	}

	for _, d := range defaults {
		priceKey := "INITIAL_PRICE_" + d.symbol
		price, err := getCents(priceKey, d.price)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", priceKey, err)
		}
		if price <= 0 {
			return fmt.Errorf("invalid %s: must be > 0", priceKey)
		}

		issuanceKey := "ISSUANCE_" + d.symbol
		issuance, err := getInt(issuanceKey, 0)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", issuanceKey, err)
		}
		if issuance < 0 {
			return fmt.Errorf("invalid %s: must be >= 0, got %d", issuanceKey, issuance)
		}

		cfg.Instruments = append(cfg.Instruments, InstrumentConfig{
			Symbol:   d.symbol,
			Price:    price,
			Issuance: int64(issuance),
		})
	}

	var err error
	if cfg.MinProperty, err = getCents("MIN_PROPERTY", "100000"); err != nil {
		return fmt.Errorf("invalid MIN_PROPERTY: %w", err)
	}
	if cfg.MaxProperty, err = getCents("MAX_PROPERTY", "5000000"); err != nil {
		return fmt.Errorf("invalid MAX_PROPERTY: %w", err)
	}
	if cfg.MinProperty <= 0 || cfg.MaxProperty < cfg.MinProperty {
		return fmt.Errorf("invalid MIN_PROPERTY/MAX_PROPERTY: need 0 < min <= max")
	}
	return nil
}

func loadPolicy(cfg *Config) error {
	var err error

	if cfg.LoanTerms, err = getInts("LOAN_TERMS", "22,44,66"); err != nil {
		return fmt.Errorf("invalid LOAN_TERMS: %w", err)
	}
	for _, term := range cfg.LoanTerms {
		if term <= 0 {
			return fmt.Errorf("invalid LOAN_TERMS: terms must be > 0, got %d", term)
		}
	}

	if cfg.LoanRates, err = getRates("LOAN_RATES", "0.027,0.03,0.033"); err != nil {
		return fmt.Errorf("invalid LOAN_RATES: %w", err)
	}
	if len(cfg.LoanRates) != len(cfg.LoanTerms) || len(cfg.LoanTerms) == 0 {
		return fmt.Errorf("invalid LOAN_RATES: need one rate per loan term, got %d rates for %d terms",
			len(cfg.LoanRates), len(cfg.LoanTerms))
	}

	if cfg.RepaymentDays, err = getInts("REPAYMENT_DAYS", "22,44,66,88,110,132,154,176,198,220,242,264"); err != nil {
		return fmt.Errorf("invalid REPAYMENT_DAYS: %w", err)
	}

	ratio := getStr("MAX_LOAN_RATIO", "1")
	if cfg.MaxLoanRatio, err = decimal.NewFromString(ratio); err != nil {
		return fmt.Errorf("invalid MAX_LOAN_RATIO: %w", err)
	}
	if cfg.MaxLoanRatio.IsNegative() {
		return fmt.Errorf("invalid MAX_LOAN_RATIO: must be >= 0, got %s", ratio)
	}

	if cfg.OverdraftTolerance, err = getCents("OVERDRAFT_TOLERANCE", "0"); err != nil {
		return fmt.Errorf("invalid OVERDRAFT_TOLERANCE: %w", err)
	}
	if cfg.OverdraftTolerance < 0 {
		return fmt.Errorf("invalid OVERDRAFT_TOLERANCE: must be >= 0")
	}

	events := []struct {
		prefix  string
		day     int
		rates   string
		message string
	}{
		{"EVENT_1", 77, "0.024,0.027,0.03",
			"The central bank cut interest rates. Loan rates are now 2.4%, 2.7% and 3.0% a year."},
		{"EVENT_2", 123, "0.0255,0.0285,0.0315",
			"The central bank raised interest rates. Loan rates are now 2.55%, 2.85% and 3.15% a year."},
	}
	for _, e := range events {
		day, err := getInt(e.prefix+"_DAY", e.day)
		if err != nil {
			return fmt.Errorf("invalid %s_DAY: %w", e.prefix, err)
		}
		if day < 0 {
			return fmt.Errorf("invalid %s_DAY: must be >= 0, got %d", e.prefix, day)
		}
		rates, err := getRates(e.prefix+"_RATES", e.rates)
		if err != nil {
			return fmt.Errorf("invalid %s_RATES: %w", e.prefix, err)
		}
		if len(rates) != len(cfg.LoanTerms) {
			return fmt.Errorf("invalid %s_RATES: need one rate per loan term, got %d", e.prefix, len(rates))
		}
		cfg.Events = append(cfg.Events, EventConfig{
			Day:     day,
			Rates:   rates,
			Message: getStr(e.prefix+"_MESSAGE", e.message),
		})
	}
	return nil
}

func loadDecider(cfg *Config) error {
	var err error

	cfg.Decider = getStr("DECIDER", DeciderRandom)
	if cfg.Decider != DeciderRandom && cfg.Decider != DeciderRemote {
		return fmt.Errorf("invalid DECIDER: %q, must be one of: random, remote", cfg.Decider)
	}

	cfg.DecisionURL = getStr("DECISION_URL", "")
	if cfg.Decider == DeciderRemote && cfg.DecisionURL == "" {
		return fmt.Errorf("invalid DECISION_URL: required when DECIDER=remote")
	}

	if cfg.DecisionTimeout, err = getDuration("DECISION_TIMEOUT", 30*time.Second); err != nil {
		return fmt.Errorf("invalid DECISION_TIMEOUT: %w", err)
	}

	if cfg.DecisionAttempts, err = getInt("DECISION_ATTEMPTS", 3); err != nil {
		return fmt.Errorf("invalid DECISION_ATTEMPTS: %w", err)
	}
	if cfg.DecisionAttempts < 1 {
		return fmt.Errorf("invalid DECISION_ATTEMPTS: must be >= 1, got %d", cfg.DecisionAttempts)
	}

	if cfg.DecisionConcurrency, err = getInt("DECISION_CONCURRENCY", 8); err != nil {
		return fmt.Errorf("invalid DECISION_CONCURRENCY: %w", err)
	}
	if cfg.DecisionConcurrency < 1 {
		return fmt.Errorf("invalid DECISION_CONCURRENCY: must be >= 1, got %d", cfg.DecisionConcurrency)
	}
	return nil
}

// MarketPolicy builds the run's economic policy. Events with day 0 are
// left out.
func (c *Config) MarketPolicy() *domain.MarketPolicy {
	repayment := make(map[int]bool, len(c.RepaymentDays))
	for _, d := range c.RepaymentDays {
		repayment[d] = true
	}

	var events []domain.MarketEvent
	for _, e := range c.Events {
		if e.Day == 0 {
			continue
		}
		events = append(events, domain.MarketEvent{
			Day:     e.Day,
			Rates:   append([]decimal.Decimal(nil), e.Rates...),
			Message: e.Message,
		})
	}

	return &domain.MarketPolicy{
		LoanTerms:          append([]int(nil), c.LoanTerms...),
		LoanRates:          append([]decimal.Decimal(nil), c.LoanRates...),
		RepaymentDays:      repayment,
		Events:             events,
		MaxLoanRatio:       c.MaxLoanRatio,
		OverdraftTolerance: c.OverdraftTolerance,
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getUint64(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getCents reads a dollar amount with at most two decimals.
func getCents(key, defaultVal string) (int64, error) {
	d, err := decimal.NewFromString(getStr(key, defaultVal))
	if err != nil {
		return 0, err
	}
	return domain.DecimalToCents(d)
}

// getInts reads a comma-separated list of integers.
func getInts(key, defaultVal string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(getStr(key, defaultVal), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// getRates reads a comma-separated list of non-negative decimal rates.
func getRates(key, defaultVal string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, part := range strings.Split(getStr(key, defaultVal), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := decimal.NewFromString(part)
		if err != nil {
			return nil, err
		}
		if r.IsNegative() {
			return nil, fmt.Errorf("rate must be >= 0, got %s", part)
		}
		out = append(out, r)
	}
	return out, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
