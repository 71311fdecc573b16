package orchestrator

import (
	"regexp"
	"strings"

	"github.com/ternarybob/dashnote/internal/services/analyzers"
)

// ReformulationRequest is returned when no agent could answer
const ReformulationRequest = "I could not answer that from the dashboard or its data. " +
	"Could you rephrase the question, for example by asking about the trend, the seasonality, the anomalies or the minimum and maximum values?"

// routes are checked in order; the first agent with a matching pattern
// takes the question
var routes = []struct {
	agent    string
	patterns []*regexp.Regexp
}{
	{
		agent: analyzers.AgentTimeSeries,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btrend(s|ing|ed)?\b`),
			regexp.MustCompile(`(?i)\bseason(al|ality)?\b`),
			regexp.MustCompile(`(?i)\b(anomal(y|ies|ous)|outliers?|spikes?)\b`),
			regexp.MustCompile(`(?i)\b(min(imum)?|max(imum)?|lowest|highest|peak)\b`),
			regexp.MustCompile(`(?i)\b(support|resistance|slope|autocorrelation)\b`),
		},
	},
	{
		agent: analyzers.AgentDashboard,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(metrics?|kpis?|indicators?)\b`),
			regexp.MustCompile(`(?i)\b(chart|graph|plot|dashboard|axis|legend)\b`),
		},
	},
	{
		agent: analyzers.AgentDomain,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(domain|industry|sector)\b`),
		},
	},
}

// fanOutOrder is the order agents are asked when no route matches
var fanOutOrder = []string{analyzers.AgentTimeSeries, analyzers.AgentDashboard, analyzers.AgentDomain}

// ClassifyQuery returns the agent a question is routed to, or "" when the
// question should go to every agent.
func ClassifyQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, route := range routes {
		for _, pattern := range route.patterns {
			if pattern.MatchString(q) {
				return route.agent
			}
		}
	}
	return ""
}

// agentAnswer is one agent's reply in a fan-out
type agentAnswer struct {
	agent string
	text  string
}

// mergeAnswers joins the answers that are not unknown. It returns false
// when none is left.
func mergeAnswers(answers []agentAnswer) (string, []string, bool) {
	var parts, agents []string
	for _, a := range answers {
		if analyzers.IsUnknownAnswer(a.text) {
			continue
		}
		parts = append(parts, strings.TrimSpace(a.text))
		agents = append(agents, a.agent)
	}
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.Join(parts, "\n\n"), agents, true
}
