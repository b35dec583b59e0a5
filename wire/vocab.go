package wire

import (
	"encoding/json"
	"fmt"
	"os"
)

// Vocabulary is the set of short movement tokens the encoder emits.
// Different peer tools expect different command vocabularies, so a
// deployment overrides these without touching any other code. The value is
// passed into NewEncoder — there is no process-wide mutable configuration.
type Vocabulary struct {
	Forward   string `json:"forward"`
	Reverse   string `json:"reverse"`
	TurnLeft  string `json:"turn_left"`
	TurnRight string `json:"turn_right"`
	Stop      string `json:"stop"`
}

// DefaultVocabulary returns the built-in short mnemonics.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Forward:   "f",
		Reverse:   "r",
		TurnLeft:  "tl",
		TurnRight: "tr",
		Stop:      "s",
	}
}

// withDefaults fills empty fields from the defaults, so a partial override
// file only needs to name the tokens that differ.
func (v Vocabulary) withDefaults() Vocabulary {
	def := DefaultVocabulary()
	if v.Forward == "" {
		v.Forward = def.Forward
	}
	if v.Reverse == "" {
		v.Reverse = def.Reverse
	}
	if v.TurnLeft == "" {
		v.TurnLeft = def.TurnLeft
	}
	if v.TurnRight == "" {
		v.TurnRight = def.TurnRight
	}
	if v.Stop == "" {
		v.Stop = def.Stop
	}
	return v
}

// token returns the wire token for a movement kind.
func (v Vocabulary) token(kind MoveKind) string {
	switch kind {
	case MoveForward:
		return v.Forward
	case MoveReverse:
		return v.Reverse
	case MoveTurnLeft:
		return v.TurnLeft
	case MoveTurnRight:
		return v.TurnRight
	case MoveStop:
		return v.Stop
	default:
		return v.Stop
	}
}

// VocabularyFromFile loads movement-token overrides from a JSON file.
// Fields missing from the file keep their defaults.
func VocabularyFromFile(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("load vocabulary from %s: %w", path, err)
	}
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	return v.withDefaults(), nil
}
