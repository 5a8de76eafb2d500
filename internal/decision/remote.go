package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Remote asks an HTTP decision service for every decision. Each request is
// a POST of a prompt to <baseURL>/<kind>; the service answers with free text
// that must pass the Validator. A rejected reply is retried with the
// validation message as feedback until attempts run out.
type Remote struct {
	baseURL   string
	attempts  int
	client    *http.Client
	validator Validator
	logger    *slog.Logger
}

// NewRemote creates a Remote decider.
func NewRemote(baseURL string, timeout time.Duration, attempts int, logger *slog.Logger) *Remote {
	if attempts < 1 {
		attempts = 1
	}
	return &Remote{
		baseURL:  strings.TrimRight(baseURL, "/"),
		attempts: attempts,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// prompt is the JSON body sent to the decision service.
type prompt struct {
	Kind     string `json:"kind"`
	Attempt  int    `json:"attempt"`
	Feedback string `json:"feedback,omitempty"`
	State    State  `json:"state"`
}

// reply is the JSON body expected back.
type reply struct {
	Text string `json:"text"`
}

// ask runs the request/validate loop. check returns a *domain.ValidationError
// for replies worth retrying.
func (r *Remote) ask(ctx context.Context, kind string, st State, check func(text string) error) error {
	var feedback string
	for attempt := 1; attempt <= r.attempts; attempt++ {
		text, err := r.post(ctx, prompt{Kind: kind, Attempt: attempt, Feedback: feedback, State: st})
		if err == nil {
			err = check(text)
		}
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		feedback = ve.Message
		r.logger.Debug("decision rejected",
			slog.String("kind", kind),
			slog.Int("participant_id", st.ParticipantID),
			slog.Int("attempt", attempt),
			slog.String("feedback", feedback),
		)
	}
	return fmt.Errorf("%s decision for participant %d: %w", kind, st.ParticipantID, domain.ErrMalformedResponse)
}

// post sends one prompt and returns the reply text.
func (r *Remote) post(ctx context.Context, p prompt) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/"+p.Kind, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	req.Header.Set("X-Participant-Id", strconv.Itoa(p.State.ParticipantID))
	req.Header.Set("X-Decision-Kind", p.Kind)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("decision request: unexpected status %d", resp.StatusCode)
	}

	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.ValidationError{Message: "Illegal json format."}
	}
	return out.Text, nil
}

// LoanDecision asks the service whether to borrow. Failures decline.
func (r *Remote) LoanDecision(ctx context.Context, st State) (domain.LoanDecision, error) {
	var out domain.LoanDecision
	err := r.ask(ctx, KindLoan, st, func(text string) error {
		d, err := r.validator.CheckLoan(text, len(st.LoanTerms), st.MaxLoan)
		out = d
		return err
	})
	if err != nil {
		return domain.NoLoan{}, err
	}
	return out, nil
}

// OrderIntent asks the service for a turn's order. Failures pass the turn.
func (r *Remote) OrderIntent(ctx context.Context, st State) (domain.Intent, error) {
	var out domain.Intent
	err := r.ask(ctx, KindAction, st, func(text string) error {
		i, err := r.validator.CheckAction(text, st)
		out = i
		return err
	})
	if err != nil {
		return domain.NoAction{}, err
	}
	return out, nil
}

// Estimate asks the service for next-day intentions.
func (r *Remote) Estimate(ctx context.Context, st State) (domain.Estimate, error) {
	var out domain.Estimate
	err := r.ask(ctx, KindEstimate, st, func(text string) error {
		e, err := r.validator.CheckEstimate(text, st.Symbols())
		out = e
		return err
	})
	return out, err
}

// Message asks the service for a forum post.
func (r *Remote) Message(ctx context.Context, st State) (string, error) {
	var out string
	err := r.ask(ctx, KindMessage, st, func(text string) error {
		m, err := r.validator.CheckMessage(text)
		out = m
		return err
	})
	return out, err
}
