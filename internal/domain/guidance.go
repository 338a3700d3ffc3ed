package domain

// Guidance is the structured side-channel signal accompanying a
// conversational reply: whether to display the visual/motor cue, how many
// cue repetitions to run, whether the exercise should advance to another
// phase, and whether a safety-grounding interrupt is needed.
//
// Every code path that produces a Guidance sets all fields.
// SuggestedNextPhase is the single nullable field: nil means "stay put".
type Guidance struct {
	ShowCue            bool   `json:"show_cue"`
	ShowBlinkCue       bool   `json:"show_blink_cue"`
	CueCount           int    `json:"cue_count"`
	SuggestedNextPhase *Phase `json:"suggested_next_phase,omitempty"`
	GroundingNeeded    bool   `json:"grounding_needed"`
}

// InterpretedReply is the normalized result of parsing completion-provider
// output: a displayable reply plus a fully populated Guidance, regardless of
// how well-formed the raw output was.
type InterpretedReply struct {
	Text     string   `json:"text"`
	Guidance Guidance `json:"guidance"`
}
