package wire

import "testing"

func TestEncodeFixedFormats(t *testing.T) {
	e := NewEncoder(DefaultVocabulary())
	face := East

	cases := []struct {
		msg  Outgoing
		want string
	}{
		{AddObstacle{ID: "B1", X: 10, Y: 6}, "ADD,B1,(10,6)"},
		{RemoveObstacle{ID: "B1"}, "SUB,B1"},
		{SetObstacleFace{ID: "B2", Face: South}, "FACE,B2,S"},
		{RobotPosition{X: 3, Y: 7, Dir: North}, "ROBOT,3,7,N"},
		{TargetReport{ObstacleID: "B1", TargetID: "T4"}, "TARGET,B1,T4"},
		{TargetReport{ObstacleID: "B1", TargetID: "T4", Face: &face}, "TARGET,B1,T4,E"},
		{Status{Text: "ready"}, "STATUS,ready"},
		{RequestSync{}, "REQUEST_SYNC"},
		{PathComplete{}, "PATH_COMPLETE"},
		{PathAbort{}, "PATH_ABORT"},
		{RawCommand{Text: "  anything goes  "}, "anything goes"},
	}

	for _, tc := range cases {
		if got := e.Encode(tc.msg); got != tc.want {
			t.Errorf("Encode(%#v): expected %q, got %q", tc.msg, tc.want, got)
		}
	}
}

func TestEncodeMovementUsesVocabulary(t *testing.T) {
	e := NewEncoder(Vocabulary{
		Forward:   "w",
		Reverse:   "x",
		TurnLeft:  "a",
		TurnRight: "d",
		Stop:      "halt",
	})

	cases := map[MoveKind]string{
		MoveForward:   "w",
		MoveReverse:   "x",
		MoveTurnLeft:  "a",
		MoveTurnRight: "d",
		MoveStop:      "halt",
	}
	for kind, want := range cases {
		if got := e.Encode(Move{Kind: kind}); got != want {
			t.Errorf("Encode(Move{%v}): expected %q, got %q", kind, want, got)
		}
	}
}

func TestEncodeDefaultMnemonics(t *testing.T) {
	// zero-value vocabulary falls back entirely to defaults
	e := NewEncoder(Vocabulary{})

	if got := e.Encode(Move{Kind: MoveForward}); got != "f" {
		t.Errorf("expected default forward mnemonic 'f', got %q", got)
	}
	if got := e.Encode(Move{Kind: MoveTurnLeft}); got != "tl" {
		t.Errorf("expected default turn-left mnemonic 'tl', got %q", got)
	}
}

func TestEncodePartialVocabularyKeepsOtherDefaults(t *testing.T) {
	e := NewEncoder(Vocabulary{Forward: "FWD"})

	if got := e.Encode(Move{Kind: MoveForward}); got != "FWD" {
		t.Errorf("expected override 'FWD', got %q", got)
	}
	if got := e.Encode(Move{Kind: MoveReverse}); got != "r" {
		t.Errorf("expected default reverse 'r', got %q", got)
	}
}

// Round-trip: every structured outgoing variant decodes back to an
// incoming message with equivalent semantic fields.
func TestCodecRoundTrip(t *testing.T) {
	e := NewEncoder(DefaultVocabulary())

	t.Run("add obstacle", func(t *testing.T) {
		m := Decode(e.Encode(AddObstacle{ID: "B1", X: 10, Y: 6}))
		got, ok := m.(ObstacleUpdate)
		if !ok {
			t.Fatalf("expected ObstacleUpdate, got %#v", m)
		}
		if got.Op != ObstacleAdd || got.ID != "B1" || got.X != 10 || got.Y != 6 || got.Face != nil {
			t.Errorf("round-trip mismatch: %#v", got)
		}
	})

	t.Run("remove obstacle", func(t *testing.T) {
		m := Decode(e.Encode(RemoveObstacle{ID: "B9"}))
		got, ok := m.(ObstacleUpdate)
		if !ok || got.Op != ObstacleRemove || got.ID != "B9" {
			t.Errorf("expected remove of B9, got %#v", m)
		}
	})

	t.Run("set face", func(t *testing.T) {
		m := Decode(e.Encode(SetObstacleFace{ID: "B2", Face: West}))
		got, ok := m.(ObstacleUpdate)
		if !ok || got.Op != ObstacleSetFace || got.ID != "B2" || got.Face == nil || *got.Face != West {
			t.Errorf("expected face W on B2, got %#v", m)
		}
	})

	t.Run("robot position", func(t *testing.T) {
		m := Decode(e.Encode(RobotPosition{X: 4, Y: 12, Dir: East}))
		got, ok := m.(RobotUpdate)
		if !ok || got.X != 4 || got.Y != 12 || got.Dir != East {
			t.Errorf("expected robot at (4,12,E), got %#v", m)
		}
	})

	t.Run("target", func(t *testing.T) {
		face := South
		m := Decode(e.Encode(TargetReport{ObstacleID: "B3", TargetID: "17", Face: &face}))
		got, ok := m.(TargetFound)
		if !ok || got.ObstacleID != "B3" || got.TargetID != "17" || got.Face == nil || *got.Face != South {
			t.Errorf("expected target 17 on B3 face S, got %#v", m)
		}
	})

	t.Run("status", func(t *testing.T) {
		m := Decode(e.Encode(Status{Text: "battery low, returning"}))
		got, ok := m.(StatusUpdate)
		if !ok || got.Text != "battery low, returning" {
			t.Errorf("expected status text preserved, got %#v", m)
		}
	})

	t.Run("sync", func(t *testing.T) {
		if _, ok := Decode(e.Encode(RequestSync{})).(SyncRequest); !ok {
			t.Error("expected SyncRequest")
		}
	})

	t.Run("path complete", func(t *testing.T) {
		if _, ok := Decode(e.Encode(PathComplete{})).(PathComplete); !ok {
			t.Error("expected PathComplete")
		}
	})

	t.Run("path abort", func(t *testing.T) {
		if _, ok := Decode(e.Encode(PathAbort{})).(PathAbort); !ok {
			t.Error("expected PathAbort")
		}
	})

	t.Run("raw", func(t *testing.T) {
		m := Decode(e.Encode(RawCommand{Text: "beep twice"}))
		got, ok := m.(Raw)
		if !ok || got.Text != "beep twice" {
			t.Errorf("expected raw passthrough, got %#v", m)
		}
	})
}
