package backup

import (
	"path/filepath"
	"testing"
)

func TestOutputName(t *testing.T) {
	tests := []struct {
		volumeID string
		want     string
	}{
		{"MY_MOVIE", "MY_MOVIE.ISO"},
		{"  PADDED  ", "PADDED.ISO"},
		{"A/B\\C", "A_B_C.ISO"},
		{"NUL\x00BYTE", "NUL_BYTE.ISO"},
		{"", "UNTITLED.ISO"},
		{"   ", "UNTITLED.ISO"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.volumeID); got != tt.want {
			t.Fatalf("OutputName(%q) = %q, want %q", tt.volumeID, got, tt.want)
		}
	}
}

func TestOutputPaths(t *testing.T) {
	final, temp := OutputPaths("/srv/isos", "DISC")
	if final != filepath.Join("/srv/isos", "DISC.ISO") {
		t.Fatalf("unexpected final path %q", final)
	}
	if temp != final+".tmp" {
		t.Fatalf("unexpected temp path %q", temp)
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		cur, last int
		want      float64
	}{
		{0, 0, 100},
		{1, 0, 100},
		{0, 99, 0},
		{33, 66, 50},
		{100, 99, 100},
	}
	for _, tt := range tests {
		if got := progressPercent(tt.cur, tt.last); got != tt.want {
			t.Fatalf("progressPercent(%d, %d) = %v, want %v", tt.cur, tt.last, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateKeyCracking.String() != "key_cracking" || State(42).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
	if !StateDone.Terminal() || !StateFailed.Terminal() || StateStreaming.Terminal() {
		t.Fatal("unexpected terminal states")
	}
}

func TestJobPublishKeepsLatest(t *testing.T) {
	j := &Job{progress: make(chan float64, 1), done: make(chan struct{})}
	j.publish(10)
	j.publish(20)
	j.publish(30)
	if got := <-j.progress; got != 30 {
		t.Fatalf("expected latest progress 30, got %v", got)
	}
	select {
	case v := <-j.progress:
		t.Fatalf("expected empty channel, got %v", v)
	default:
	}
}
