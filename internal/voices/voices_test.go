package voices

import "testing"

func TestResolveAcceptsIDsAndPresetsCaseInsensitive(t *testing.T) {
	cases := map[string]string{
		"af_heart":  "af_heart",
		"AF_HEART":  "af_heart",
		"Narrator":  "bm_george",
		" whisper ": "af_nicole",
	}
	for in, want := range cases {
		got, ok := Resolve(in)
		if !ok || got != want {
			t.Fatalf("Resolve(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := Resolve("not_a_voice"); ok {
		t.Fatalf("Resolve(not_a_voice) should fail")
	}
}

func TestEveryTableVoiceIsApproved(t *testing.T) {
	for _, name := range Emotions() {
		style, _ := Emotion(name)
		if !IsApproved(style.VoiceID) {
			t.Fatalf("emotion %q uses unapproved voice %q", name, style.VoiceID)
		}
		if style.Speed < MinEmotionSpeed || style.Speed > MaxEmotionSpeed {
			t.Fatalf("emotion %q speed %v outside band", name, style.Speed)
		}
	}
	for name, id := range Presets() {
		if !IsApproved(id) {
			t.Fatalf("preset %q uses unapproved voice %q", name, id)
		}
	}
	for _, id := range CastingPool() {
		if !IsApproved(id) {
			t.Fatalf("pool voice %q is not approved", id)
		}
	}
}

func TestCastingPoolAlternatesGenderStartingMale(t *testing.T) {
	pool := CastingPool()
	if len(pool) != 12 {
		t.Fatalf("len(pool) = %d, want 12", len(pool))
	}
	for i, id := range pool {
		v, _ := Lookup(id)
		want := Male
		if i%2 == 1 {
			want = Female
		}
		if v.Gender != want {
			t.Fatalf("pool[%d] = %s gender %s, want %s", i, id, v.Gender, want)
		}
	}
}

func TestCasterSkipsUsedAndWrapsFromStart(t *testing.T) {
	c := NewCaster()
	c.MarkUsed("af_bella")
	if got := c.Next(); got != "am_adam" {
		t.Fatalf("first = %s, want am_adam", got)
	}
	if got := c.Next(); got != "bm_george" {
		t.Fatalf("second = %s, want bm_george (af_bella taken)", got)
	}
	for i := 0; i < 9; i++ {
		c.Next()
	}
	// Every pool voice is now taken, so picks restart at the pool start.
	if got := c.Next(); got != "am_adam" {
		t.Fatalf("first wrapped pick = %s, want am_adam", got)
	}
	if got := c.Next(); got != "af_bella" {
		t.Fatalf("second wrapped pick = %s, want af_bella", got)
	}
}

func TestUnknownEmotionFallsBackToNeutral(t *testing.T) {
	style, ok := Emotion("bewildered")
	if ok {
		t.Fatalf("Emotion(bewildered) ok = true, want false")
	}
	neutral, _ := Emotion(Neutral)
	if style != neutral {
		t.Fatalf("style = %+v, want neutral %+v", style, neutral)
	}
}
