package metrics

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordAuthorizeDecision(outcome string)        {}
func (n *NoopMetrics) RecordCodeIssued()                             {}
func (n *NoopMetrics) RecordTokenExchange(grantType, result string)  {}
func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string) {}
func (n *NoopMetrics) RecordTokenRevoked(tokenType string)           {}
func (n *NoopMetrics) RecordTokenValidation(result string)           {}
func (n *NoopMetrics) RecordLogin(source string, success bool)       {}
