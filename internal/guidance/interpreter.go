package guidance

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ashureev/seren/internal/domain"
)

// wirePayload is the structured shape the prompt asks the provider for.
// Guidance fields are pointers so a decoded-but-partial object can be told
// apart from an absent one.
type wirePayload struct {
	Reply    string        `json:"reply"`
	Guidance *wireGuidance `json:"guidance"`
}

type wireGuidance struct {
	ShowCue            *bool   `json:"showCue"`
	ShowBlinkCue       *bool   `json:"showBlinkCue"`
	CueCount           *int    `json:"cueCount"`
	SuggestedNextPhase *string `json:"suggestedNextPhase"`
	GroundingNeeded    *bool   `json:"groundingNeeded"`
}

// fencedBlock matches a ```-fenced block with an optional language tag.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Interpret turns raw provider output into an InterpretedReply. It never
// fails: formatting problems degrade through a three-tier cascade.
//
//  1. Strict decode of the whole string as the structured shape.
//  2. Decode of a fenced code block embedded in the string.
//  3. The raw string verbatim as reply text, with phase-conditioned
//     fallback guidance.
//
// In tiers 1 and 2 the decoded guidance is partially trusted: fields the
// provider supplied are kept, missing ones are filled from Fallback.
func Interpret(raw string, phase domain.Phase, turnCount int) domain.InterpretedReply {
	defaults := Fallback(phase, turnCount)

	if reply, ok := decodePayload(strings.TrimSpace(raw), defaults); ok {
		return reply
	}

	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		if reply, ok := decodePayload(m[1], defaults); ok {
			return reply
		}
	}

	return domain.InterpretedReply{
		Text:     raw,
		Guidance: defaults,
	}
}

// decodePayload attempts a strict decode of data as the structured shape.
// A payload with an empty reply is rejected so we never hand back a blank
// message.
func decodePayload(data string, defaults domain.Guidance) (domain.InterpretedReply, bool) {
	var payload wirePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return domain.InterpretedReply{}, false
	}
	if payload.Reply == "" {
		return domain.InterpretedReply{}, false
	}
	return domain.InterpretedReply{
		Text:     payload.Reply,
		Guidance: mergeGuidance(payload.Guidance, defaults),
	}, true
}

// mergeGuidance overlays provider-supplied guidance fields onto the
// phase-conditioned defaults. Every output field ends up populated; an
// unrecognized suggested phase is treated as absent.
func mergeGuidance(partial *wireGuidance, defaults domain.Guidance) domain.Guidance {
	if partial == nil {
		return defaults
	}

	merged := defaults
	if partial.ShowCue != nil {
		merged.ShowCue = *partial.ShowCue
	}
	if partial.ShowBlinkCue != nil {
		merged.ShowBlinkCue = *partial.ShowBlinkCue
	}
	if partial.CueCount != nil {
		merged.CueCount = *partial.CueCount
	}
	if partial.GroundingNeeded != nil {
		merged.GroundingNeeded = *partial.GroundingNeeded
	}
	if partial.SuggestedNextPhase != nil {
		if p, ok := domain.ParsePhase(*partial.SuggestedNextPhase); ok {
			merged.SuggestedNextPhase = &p
		}
	}
	return merged
}
