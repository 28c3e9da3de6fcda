package domain

type Status string

const (
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// AgentState tracks one pipeline stage. Data is set only once the stage
// is complete and Logs only grows until the stage is reset.
type AgentState[T any] struct {
	Status Status   `json:"status"`
	Data   *T       `json:"data"`
	Logs   []string `json:"logs"`
}

func NewAgentState[T any]() AgentState[T] {
	return AgentState[T]{Status: StatusIdle, Logs: []string{}}
}

// Start resets the stage and moves it to working with the given opening logs.
func (s *AgentState[T]) Start(logs ...string) {
	s.Status = StatusWorking
	s.Data = nil
	s.Logs = append([]string{}, logs...)
}

func (s *AgentState[T]) Log(msg string) {
	s.Logs = append(s.Logs, msg)
}

func (s *AgentState[T]) Complete(data T) {
	s.Status = StatusComplete
	s.Data = &data
}

func (s *AgentState[T]) Fail(msg string) {
	s.Status = StatusError
	s.Data = nil
	s.Logs = append(s.Logs, msg)
}

// Clone returns a copy that shares no slices with s.
func (s AgentState[T]) Clone() AgentState[T] {
	out := AgentState[T]{Status: s.Status, Logs: append([]string{}, s.Logs...)}
	if s.Data != nil {
		d := *s.Data
		out.Data = &d
	}
	return out
}
