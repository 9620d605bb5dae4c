package metrics

// ChainMetrics groups the series recorded by the chain engine and the suggestion bridge.
type ChainMetrics struct {
	Runs              *Counter
	StepExecutions    *Counter
	DomainErrors      *Counter
	TransportFailures *Counter
	SkippedSteps      *Counter
	SupersededRuns    *Counter
	RunsInFlight      *Gauge
	StepLatency       *Histogram

	SuggestionChecks *Counter
	SuggestionHits   *Counter
	SuggestionErrors *Counter
}

// NewChainMetrics registers the chain series on c.
func NewChainMetrics(c *MetricsCollector) *ChainMetrics {
	return &ChainMetrics{
		Runs:              c.Counter("omnitool_chain_runs_total", "Total chain runs executed", ""),
		StepExecutions:    c.Counter("omnitool_step_executions_total", "Total tool executor calls", ""),
		DomainErrors:      c.Counter("omnitool_step_domain_errors_total", "Steps whose tool reported an error", ""),
		TransportFailures: c.Counter("omnitool_step_transport_failures_total", "Executor calls that could not complete", ""),
		SkippedSteps:      c.Counter("omnitool_steps_skipped_total", "Steps not executed because an earlier step failed", ""),
		SupersededRuns:    c.Counter("omnitool_chain_runs_superseded_total", "Scheduled runs dropped because a newer edit arrived", ""),
		RunsInFlight:      c.Gauge("omnitool_chain_runs_in_flight", "Chain runs currently executing", ""),
		StepLatency: c.Histogram("omnitool_step_latency_seconds", "Tool executor latency in seconds", "",
			[]float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5}),

		SuggestionChecks: c.Counter("omnitool_suggestion_checks_total", "Detector invocations", ""),
		SuggestionHits:   c.Counter("omnitool_suggestion_hits_total", "Checks that produced a suggestion", ""),
		SuggestionErrors: c.Counter("omnitool_suggestion_errors_total", "Checks that failed reading text or detecting", ""),
	}
}

// Default is registered on the process-wide Collector.
var Default = NewChainMetrics(Collector)
