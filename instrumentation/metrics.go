package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the core.
type Metrics struct {
	// Token lifecycle
	TokensIssued            metric.Int64Counter
	TokenVerificationFailed metric.Int64Counter
	TokensRefreshed         metric.Int64Counter
	SessionsRevoked         metric.Int64Counter

	// Provider protocol
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIErrors     metric.Int64Counter

	// Request limiting
	RateLimitExceeded metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	authMeter := inst.Meter("auth")
	providerMeter := inst.Meter("providers")
	limiterMeter := inst.Meter("ratelimit")

	m := &Metrics{}
	var err error

	m.TokensIssued, err = authMeter.Int64Counter(
		"authcore.tokens.issued",
		metric.WithDescription("Number of tokens issued, by audience"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokenVerificationFailed, err = authMeter.Int64Counter(
		"authcore.tokens.verification_failed",
		metric.WithDescription("Number of failed token verifications, by reason"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.verification_failed counter: %w", err)
	}

	m.TokensRefreshed, err = authMeter.Int64Counter(
		"authcore.tokens.refreshed",
		metric.WithDescription("Number of access tokens minted from a refresh token"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.SessionsRevoked, err = authMeter.Int64Counter(
		"authcore.sessions.revoked",
		metric.WithDescription("Number of refresh-token revocations"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.revoked counter: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"authcore.provider.api_calls",
		metric.WithDescription("Number of OAuth2 provider API calls, by operation"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api_calls counter: %w", err)
	}

	m.ProviderAPIErrors, err = providerMeter.Int64Counter(
		"authcore.provider.api_errors",
		metric.WithDescription("Number of failed OAuth2 provider API calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api_errors counter: %w", err)
	}

	m.RateLimitExceeded, err = limiterMeter.Int64Counter(
		"authcore.ratelimit.exceeded",
		metric.WithDescription("Number of requests denied by the rate limiter"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	return m, nil
}
