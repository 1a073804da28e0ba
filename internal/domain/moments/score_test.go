package moments

import (
	"testing"
	"time"
)

func TestScoreText_RewardsHooksAndPunctuation(t *testing.T) {
	w := DefaultScoreWeights()
	flat := ScoreText("we were just walking along the road for a while", w)
	hot := ScoreText("this insane secret will shock you! never do this mistake, wait for it!", w)
	if hot <= flat {
		t.Fatalf("hook-heavy text should outscore flat text: %v vs %v", hot, flat)
	}
	if s := ScoreText("", w); s != 0 {
		t.Fatalf("empty text should score zero, got %v", s)
	}
	if s := ScoreText("how to do this in 3 steps: first, second, third", w); s <= 0 {
		t.Fatalf("procedural text should score positive, got %v", s)
	}
}

func TestScoreText_Clamped(t *testing.T) {
	w := DefaultScoreWeights()
	var b []byte
	for i := 0; i < 100; i++ {
		b = append(b, []byte("insane! secret! mistake! ")...)
	}
	if s := ScoreText(string(b), w); s != 10 {
		t.Fatalf("score should clamp at 10, got %v", s)
	}
}

func TestEnergyScores_BurstBeatsSilence(t *testing.T) {
	// 60s of audio: silence except a loud alternating burst in 20..25s.
	n := 60 * pcmSampleRate
	pcm := make([]byte, 2*n)
	for i := 20 * pcmSampleRate; i < 25*pcmSampleRate; i += 2 {
		pcm[2*i] = 0x00
		pcm[2*i+1] = 0x4E // 19968
	}
	windows := []Window{
		{Start: 0, End: 15 * time.Second},
		{Start: 15 * time.Second, End: 30 * time.Second},
		{Start: 30 * time.Second, End: 45 * time.Second},
	}
	got := EnergyScores(pcm, 0, windows)
	if got[1] != 1.0 {
		t.Fatalf("burst window should normalize to 1.0, got %v", got[1])
	}
	if got[0] != 0 || got[2] != 0 {
		t.Fatalf("silent windows should score zero, got %v and %v", got[0], got[2])
	}
}

func TestEnergyScores_AllQuiet(t *testing.T) {
	pcm := make([]byte, 2*30*pcmSampleRate)
	windows := []Window{{Start: 0, End: 30 * time.Second}}
	got := EnergyScores(pcm, 0, windows)
	if got[0] != 0 {
		t.Fatalf("flat silence must not divide by zero, got %v", got[0])
	}
}

func TestPositionalWindows_EvenSpacing(t *testing.T) {
	got := PositionalWindows(600*time.Second, 60*time.Second, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got))
	}
	step := (600 - 60) * time.Second / 4
	for i, m := range got {
		want := step * time.Duration(i+1)
		if m.Start != want {
			t.Fatalf("window %d start %v, want %v", i, m.Start, want)
		}
		if m.End-m.Start != 60*time.Second {
			t.Fatalf("window %d wrong length: %+v", i, m)
		}
		if m.Score != 0.8 {
			t.Fatalf("fallback windows carry score 0.8, got %v", m.Score)
		}
	}
}

func TestPositionalWindows_ShortSourceIsOneFullWindow(t *testing.T) {
	got := PositionalWindows(40*time.Second, 60*time.Second, 4)
	if len(got) != 1 {
		t.Fatalf("expected single full-video window, got %d", len(got))
	}
	if got[0].Start != 0 || got[0].End != 40*time.Second || got[0].Score != 1.0 {
		t.Fatalf("unexpected window %+v", got[0])
	}
}
