package harness

// Trace event types.
const (
	EventInvoke       = "invoke"
	EventComplete     = "complete"
	EventAlert        = "alert"
	EventToast        = "toast"
	EventNotification = "notification"
)

// TraceEvent is one observable thing that happened during a scenario.
// Invoke and complete events bracket each step; alerts, toasts and
// notifications appear between them in the order they occurred.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Type   string         `json:"type"`
	Step   string         `json:"step,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// Name is what assertions match events by: the step for invoke events,
// "<step>.done" for completions, and the type otherwise.
func (e TraceEvent) Name() string {
	switch e.Type {
	case EventInvoke:
		return e.Step
	case EventComplete:
		return e.Step + ".done"
	}
	return e.Type
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors explains each failure. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final engine and toast state.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
