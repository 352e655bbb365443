package simulate

import (
	"fmt"
	"slices"

	"github.com/khanglvm/flowlearn/internal/verification"
)

// Scenario describes a scripted sequence of requests.
type Scenario struct {
	ID   string
	Name string
	Type verification.ScenarioType
	Mode string

	// Messages are sent in order. A single message is repeated for every
	// execution.
	Messages   []string
	Executions int

	// Workflow is the tool sequence a flow-mode agent plans on its own.
	Workflow []string

	// Candidates are the tools a basic-mode agent chooses from and
	// ExpectedTools the correct choice.
	Candidates    []string
	ExpectedTools []string
	Urgency       string
}

// Message returns the request text of the i-th execution (0-based).
func (s Scenario) Message(i int) string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[i%len(s.Messages)]
}

// FlowPatternLearning repeats one request so the agent's workflow is learned
// and then suggested back.
var FlowPatternLearning = Scenario{
	ID:         "1.1",
	Name:       "Flow mode pattern learning",
	Type:       verification.ScenarioFlowPatternLearning,
	Mode:       "flow",
	Messages:   []string{"Look up the SHE emergency contacts in the database and alert the team on Slack"},
	Executions: 4,
	Workflow:   []string{"search_database", "send_slack"},
}

// BasicToolSelection sends differently worded urgent notifications so the
// agent learns which tool fits them.
var BasicToolSelection = Scenario{
	ID:   "1.2",
	Name: "Basic mode tool selection",
	Type: verification.ScenarioBasicToolSelection,
	Mode: "basic",
	Messages: []string{
		"Let the team know about the emergency",
		"Something urgent came up, tell my colleagues",
		"Announce the emergency to all team members",
		"Forward this important alert to everyone on the team",
		"Post an urgent message in the team channel",
	},
	Executions:    5,
	Candidates:    []string{"send_email", "send_slack", "emergency_mail"},
	ExpectedTools: []string{"send_slack"},
	Urgency:       "high",
}

// Scenarios lists the built-in scenarios.
func Scenarios() []Scenario {
	return []Scenario{FlowPatternLearning, BasicToolSelection}
}

// Lookup returns the built-in scenario for an id: "1.1", "1.2", "flow",
// "basic" or a full scenario type.
func Lookup(id string) (Scenario, error) {
	typ, err := verification.ParseScenario(id)
	if err != nil {
		return Scenario{}, err
	}
	i := slices.IndexFunc(Scenarios(), func(s Scenario) bool { return s.Type == typ })
	if i < 0 {
		return Scenario{}, fmt.Errorf("no built-in scenario for %s", typ)
	}
	return Scenarios()[i], nil
}
