package timectl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	logx "framesched/pkg/logx"
)

func TestChannelLazyDefaults(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	c := r.Channel(Gameplay)
	if c.Paused() || c.TimeScale() != 1 {
		t.Fatalf("new channel paused=%v scale=%v, want false/1", c.Paused(), c.TimeScale())
	}
	if r.Channel(Gameplay) != c {
		t.Fatal("second lookup returned a different channel")
	}
}

func TestPausedChannelYieldsZeroDeltas(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.SetPaused(UI, true)
	for _, in := range []float64{0, 0.016, 1, 42} {
		r.UpdateAll(in)
		r.FixedUpdateAll(in)
		c := r.Channel(UI)
		if c.DeltaTime() != 0 || c.UnscaledDeltaTime() != 0 {
			t.Fatalf("paused delta = %v/%v for input %v", c.DeltaTime(), c.UnscaledDeltaTime(), in)
		}
		if c.FixedDeltaTime() != 0 || c.UnscaledFixedDeltaTime() != 0 {
			t.Fatalf("paused fixed delta = %v/%v for input %v", c.FixedDeltaTime(), c.UnscaledFixedDeltaTime(), in)
		}
	}
}

func TestScalesCompose(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.SetGlobalTimeScale(2)
	r.SetGlobalFixedTimeScale(0.5)
	r.SetTimeScale(Gameplay, 0.25)

	r.UpdateAll(1)
	r.FixedUpdateAll(1)

	if got := r.UnscaledDeltaTime(Gameplay); got != 2 {
		t.Fatalf("UnscaledDeltaTime = %v, want 2 (global scale applies first)", got)
	}
	if got := r.DeltaTime(Gameplay); got != 0.5 {
		t.Fatalf("DeltaTime = %v, want 0.5", got)
	}
	if got := r.FixedDeltaTime(Gameplay); got != 0.125 {
		t.Fatalf("FixedDeltaTime = %v, want 0.125", got)
	}
	if got := r.DeltaTime(Always); got != 2 {
		t.Fatalf("Always DeltaTime = %v, want 2", got)
	}
}

func TestNegativeScaleClamps(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.SetTimeScale(Camera, -3)
	if got := r.Channel(Camera).TimeScale(); got != 0 {
		t.Fatalf("TimeScale = %v, want 0", got)
	}
	r.SetGlobalTimeScale(-1)
	if r.GlobalTimeScale() != 0 {
		t.Fatalf("GlobalTimeScale = %v, want 0", r.GlobalTimeScale())
	}
}

func TestAlwaysIsProtected(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := NewRegistry(WithLogger(logx.New(zerolog.New(&buf))), WithWarnLimiter(nil))

	if r.SetPaused(Always, true) {
		t.Fatal("SetPaused(Always) reported a change")
	}
	if r.SetTimeScale(Always, 0) {
		t.Fatal("SetTimeScale(Always) reported a change")
	}
	r.SetPausedMany([]Group{Always, Inputs}, true)
	r.SetTimeScaleMany([]Group{Always, Inputs}, 3)

	c := r.Channel(Always)
	if c.Paused() || c.TimeScale() != 1 {
		t.Fatalf("Always changed: paused=%v scale=%v", c.Paused(), c.TimeScale())
	}
	if !r.IsPaused(Inputs) || r.Channel(Inputs).TimeScale() != 3 {
		t.Fatal("batch call did not apply to Inputs")
	}
	if n := strings.Count(buf.String(), `"level":"warn"`); n != 4 {
		t.Fatalf("warnings = %d, want 4\n%s", n, buf.String())
	}
}

func TestParseGroup(t *testing.T) {
	t.Parallel()
	for _, g := range Groups() {
		got, err := ParseGroup(strings.ToUpper(g.String()))
		if err != nil || got != g {
			t.Fatalf("ParseGroup(%q) = %v, %v", g.String(), got, err)
		}
	}
	if _, err := ParseGroup("menu"); err == nil {
		t.Fatal("expected error for unknown group")
	}
}
