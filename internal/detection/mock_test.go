package detection

import (
	"context"
	"strings"
	"testing"
)

func TestMockIsDeterministic(t *testing.T) {
	m := NewMock()
	text := "The mitochondria is the powerhouse of the cell"

	first := m.Classify(context.Background(), text)
	for i := 0; i < 5; i++ {
		if got := m.Classify(context.Background(), text); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
	if first.Source != SourceMock {
		t.Errorf("source = %s, want mock", first.Source)
	}
}

func TestMockScoreBands(t *testing.T) {
	m := NewMock()
	cases := []struct {
		text     string
		min, max float64
	}{
		{strings.Repeat("a", 10), 10, 40},
		{strings.Repeat("b", 300), 20, 50},
		{strings.Repeat("c", 600), 30, 60},
	}
	for _, c := range cases {
		s := m.Score(c.text)
		if s < c.min || s >= c.max {
			t.Errorf("len %d: score %v outside [%v, %v)", len(c.text), s, c.min, c.max)
		}
	}
}

func TestMockShortTextIsHuman(t *testing.T) {
	res := NewMock().Classify(context.Background(), "short answer")
	if res.IsMachineGenerated {
		t.Fatalf("short text classified as machine: %+v", res)
	}
	if res.Confidence != res.HumanProbability {
		t.Errorf("human confidence should equal human probability: %+v", res)
	}
}
