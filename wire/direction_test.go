package wire

import (
	"math"
	"testing"
	"time"
)

func TestQuantizeBoundaries(t *testing.T) {
	// each quadrant boundary belongs to the next cardinal, plus wraparound
	cases := []struct {
		deg  float64
		want Direction
	}{
		{0, North},
		{44, North},
		{45, East},
		{90, East},
		{134, East},
		{135, South},
		{180, South},
		{224, South},
		{225, West},
		{270, West},
		{314, West},
		{315, North},
		{359, North},
		{360, North},
		{-90, West},
		{-45, North},
		{-46, West},
		{450, East},
		{720, North},
	}

	for _, tc := range cases {
		if got := QuantizeDegrees(tc.deg); got != tc.want {
			t.Errorf("QuantizeDegrees(%v): expected %v, got %v", tc.deg, tc.want, got)
		}
	}
}

func TestParseDirectionLetters(t *testing.T) {
	cases := map[string]Direction{
		"N": North, "n": North,
		"E": East, "e": East,
		"S": South, "s": South,
		"W": West, "w": West,
	}
	for in, want := range cases {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Errorf("ParseDirection(%q): expected %v, got %v ok=%v", in, want, got, ok)
		}
	}
}

func TestParseDirectionNames(t *testing.T) {
	cases := map[string]Direction{
		"NORTH": North,
		"east":  East,
		"South": South,
		" west ": West,
	}
	for in, want := range cases {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Errorf("ParseDirection(%q): expected %v, got %v ok=%v", in, want, got, ok)
		}
	}
}

func TestParseDirectionDegrees(t *testing.T) {
	cases := map[string]Direction{
		"0":   North,
		"90":  East,
		"180": South,
		"270": West,
		"44":  North,
		"135": South,
	}
	for in, want := range cases {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Errorf("ParseDirection(%q): expected %v, got %v ok=%v", in, want, got, ok)
		}
	}
}

func TestParseDirectionRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "NE", "northish", "x1"} {
		if _, ok := ParseDirection(in); ok {
			t.Errorf("ParseDirection(%q): expected failure", in)
		}
	}
}

func TestQuantizeDegreesNonFinite(t *testing.T) {
	for _, deg := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		if got := QuantizeDegrees(deg); got != North {
			t.Errorf("QuantizeDegrees(%v): expected NORTH fallback, got %v", deg, got)
		}
	}
}

func TestQuantizeDegreesHugeInputsReturnPromptly(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, deg := range []float64{-1e18, 1e18, -1e308, 1e308, math.Inf(-1), math.Inf(1)} {
			QuantizeDegrees(deg)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("quantization did not return for extreme input")
	}
}

func TestParseDirectionRejectsNonFinite(t *testing.T) {
	for _, in := range []string{"Inf", "-Inf", "+Inf", "NaN", "nan"} {
		if _, ok := ParseDirection(in); ok {
			t.Errorf("ParseDirection(%q): expected failure", in)
		}
	}
}

func TestDirectionLetters(t *testing.T) {
	if North.Letter() != "N" || East.Letter() != "E" || South.Letter() != "S" || West.Letter() != "W" {
		t.Error("direction letters do not match compass codes")
	}
}
