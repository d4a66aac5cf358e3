package tokens

import "testing"

func TestCounter_Count(t *testing.T) {
	c := NewCounter()

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}

	short := c.Count("Once upon a time")
	if short <= 0 {
		t.Fatalf("Count(short) = %d, want > 0", short)
	}

	long := c.Count("Once upon a time, in a quiet village by the sea, there lived a small fox who collected forgotten umbrellas.")
	if long <= short {
		t.Errorf("Count(long) = %d, want > Count(short) = %d", long, short)
	}
}

func TestCounter_Deterministic(t *testing.T) {
	c := NewCounter()
	const text = "The moon follows the river all the way home."

	first := c.Count(text)
	for n := 0; n < 5; n++ {
		if got := c.Count(text); got != first {
			t.Fatalf("Count() = %d, want stable %d", got, first)
		}
	}
}

func TestEstimate(t *testing.T) {
	if got := estimate("abcd"); got != 1 {
		t.Errorf("estimate(4 bytes) = %d, want 1", got)
	}
	if got := estimate("a"); got != 1 {
		t.Errorf("estimate(1 byte) = %d, want 1", got)
	}
}
