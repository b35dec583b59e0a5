package wire

import (
	"fmt"
	"strings"
)

// Encoder maps outgoing messages to wire strings. It is a pure value —
// construct it once with the deployment's Vocabulary and share it freely;
// Encode has no mutable state, so concurrent use needs no locking.
type Encoder struct {
	vocab Vocabulary
}

// NewEncoder creates an encoder using the given movement vocabulary.
// Empty vocabulary fields fall back to the default mnemonics.
func NewEncoder(vocab Vocabulary) *Encoder {
	return &Encoder{vocab: vocab.withDefaults()}
}

// Encode returns exactly one wire line per outgoing message. It is total:
// every Outgoing variant has an encoding, and RawCommand passes through
// trimmed verbatim. The returned line carries no terminator — the session
// layer appends it.
func (e *Encoder) Encode(m Outgoing) string {
	switch msg := m.(type) {
	case Move:
		return e.vocab.token(msg.Kind)
	case AddObstacle:
		return fmt.Sprintf("ADD,%s,(%d,%d)", msg.ID, msg.X, msg.Y)
	case RemoveObstacle:
		return fmt.Sprintf("SUB,%s", msg.ID)
	case SetObstacleFace:
		return fmt.Sprintf("FACE,%s,%s", msg.ID, msg.Face.Letter())
	case RobotPosition:
		return fmt.Sprintf("ROBOT,%d,%d,%s", msg.X, msg.Y, msg.Dir.Letter())
	case TargetReport:
		if msg.Face != nil {
			return fmt.Sprintf("TARGET,%s,%s,%s", msg.ObstacleID, msg.TargetID, msg.Face.Letter())
		}
		return fmt.Sprintf("TARGET,%s,%s", msg.ObstacleID, msg.TargetID)
	case Status:
		return "STATUS," + msg.Text
	case RequestSync:
		return "REQUEST_SYNC"
	case PathComplete:
		return "PATH_COMPLETE"
	case PathAbort:
		return "PATH_ABORT"
	case RawCommand:
		return strings.TrimSpace(msg.Text)
	default:
		// the Outgoing set is closed; this only fires if a variant is
		// added without an encoding
		return ""
	}
}
