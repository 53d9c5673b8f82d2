package chess

import "testing"

func TestDifficultyRatings(t *testing.T) {
	want := map[Difficulty]int{Easy: 800, Medium: 1200, Hard: 1700, Expert: 2200}
	for d, r := range want {
		if got := d.Rating(); got != r {
			t.Fatalf("%s rating = %d, want %d", d, got, r)
		}
	}
	if len(Difficulties()) != len(want) {
		t.Fatalf("unexpected label count %d", len(Difficulties()))
	}
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" Hard ")
	if err != nil || d != Hard {
		t.Fatalf("ParseDifficulty: %q %v", d, err)
	}
	if _, err := ParseDifficulty("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown label")
	}
}

func TestRatingPanicsOnUnknownLabel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = Difficulty("nope").Rating()
}

func TestClampRating(t *testing.T) {
	cases := map[int]int{-5: 100, 99: 100, 100: 100, 1500: 1500, 3000: 3000, 3200: 3000}
	for in, want := range cases {
		if got := ClampRating(in); got != want {
			t.Fatalf("ClampRating(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDifficultyFor(t *testing.T) {
	if d, ok := DifficultyFor(1700); !ok || d != Hard {
		t.Fatalf("DifficultyFor(1700) = %q %v", d, ok)
	}
	if _, ok := DifficultyFor(1500); ok {
		t.Fatalf("1500 is not a label rating")
	}
}
