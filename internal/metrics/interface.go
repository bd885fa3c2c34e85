package metrics

// Recorder is implemented by the Prometheus-backed Metrics and by NoopMetrics.
type Recorder interface {
	// Authorization endpoint: outcome is consent, login, approved, denied or an OAuth2 error code
	RecordAuthorizeDecision(outcome string)
	RecordCodeIssued()

	// Token endpoint and refresh cookie
	RecordTokenExchange(grantType, result string)
	RecordTokenIssued(tokenType, grantType string)
	RecordTokenRevoked(tokenType string)
	RecordTokenValidation(result string)

	// Interactive logins (session login form, JWT relay)
	RecordLogin(source string, success bool)
}
