package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reqsync/internal/model"
)

// Scenario scripts a session against the fake API.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the session identity.
	User ScenarioUser `yaml:"user"`

	// Remote is the number of fixture requisitions served at the start.
	Remote int `yaml:"remote"`

	// Cache is the number of fixture requisitions already cached locally.
	Cache int `yaml:"cache,omitempty"`

	// Notifications is the answer to the OS permission prompt: "granted"
	// (default) or "denied".
	Notifications string `yaml:"notifications,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioUser is the session identity. Role accepts the sheet names too.
type ScenarioUser struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// Model converts the user, resolving the role name.
func (u ScenarioUser) Model() (model.User, error) {
	role, ok := model.ParseRole(u.Role)
	if !ok {
		return model.User{}, fmt.Errorf("unknown role %q", u.Role)
	}
	return model.User{Username: u.Username, Name: u.Name, Role: role}, nil
}

// Step kinds.
const (
	StepStart   = "start"
	StepStop    = "stop"
	StepPoll    = "poll"
	StepRefresh = "refresh"
	StepCreate  = "create"
	StepDelete  = "delete"
	StepAdvance = "advance"
	StepClick   = "click"
)

// Step is one scripted action.
type Step struct {
	// Do is the step kind.
	Do string `yaml:"do"`

	// Remote changes the served fixture count before the step.
	Remote *int `yaml:"remote,omitempty"`

	// Fail scripts a remote failure with this message.
	Fail string `yaml:"fail,omitempty"`

	// Client, Fitter and Type describe the requisition of a create step.
	Client string `yaml:"client,omitempty"`
	Fitter string `yaml:"fitter,omitempty"`
	Type   string `yaml:"type,omitempty"`

	// ID is the requisition a delete step removes.
	ID string `yaml:"id,omitempty"`

	// Wait is how far an advance step moves the clock.
	Wait string `yaml:"wait,omitempty"`

	// Expect constrains the step's outcome. Nil means it must succeed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected step failure.
type StepExpect struct {
	// Error must be contained in the step's error message.
	Error string `yaml:"error"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event named Event whose result includes Result
	// - "trace_order": Events appear in order
	// - "trace_count": Event appears exactly Count times
	// - "final_state": the final state includes Expect
	Type string `yaml:"type"`

	// Event is the event name (used by trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Result holds expected result fields (used by trace_contains).
	// Subset match - only specified fields are validated.
	Result map[string]any `yaml:"result,omitempty"`

	// Count is the expected occurrence count (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order (used by trace_order).
	Events []string `yaml:"events,omitempty"`

	// Expect contains expected state values (used by final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := s.User.Model(); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	if s.User.Username == "" {
		return fmt.Errorf("user: username is required")
	}

	if s.Remote < 0 || s.Cache < 0 {
		return fmt.Errorf("remote and cache counts must be non-negative")
	}

	switch s.Notifications {
	case "", "granted", "denied":
	default:
		return fmt.Errorf("notifications must be granted or denied, got %q", s.Notifications)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Do {
	case StepStart, StepStop, StepPoll, StepRefresh, StepClick:
	case StepCreate:
		if s.Type != "" {
			if _, ok := model.ParseRequisitionType(s.Type); !ok {
				return fmt.Errorf("steps[%d]: unknown requisition type %q", index, s.Type)
			}
		}
	case StepDelete:
		if s.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for delete", index)
		}
	case StepAdvance:
		if _, err := time.ParseDuration(s.Wait); err != nil {
			return fmt.Errorf("steps[%d]: wait must be a duration: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, s.Do)
	}

	if s.Remote != nil && *s.Remote < 0 {
		return fmt.Errorf("steps[%d]: remote must be non-negative", index)
	}
	if s.Expect != nil && s.Expect.Error == "" {
		return fmt.Errorf("steps[%d].expect: error is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
