package recommend

import "fmt"

// State is a step of the recommendation pipeline.
type State int

const (
	StateIdle State = iota
	StateExtractingKeywords
	StateGating
	StateRanking
	StateJoining
	StateFiltering
	StateTruncating
	StateDone
	StateFallback
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateExtractingKeywords: "extracting_keywords",
	StateGating:             "gating",
	StateRanking:            "ranking",
	StateJoining:            "joining",
	StateFiltering:          "filtering",
	StateTruncating:         "truncating",
	StateDone:               "done",
	StateFallback:           "fallback",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends the pipeline.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFallback
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
