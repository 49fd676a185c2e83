package roulette

import "testing"

func TestColorOfZeroIsGreen(t *testing.T) {
	if c := ColorOf(0); c != Green {
		t.Fatalf("expected green, got %s", c)
	}
}

func TestColorOfRedNumbers(t *testing.T) {
	for _, n := range []int{1, 3, 5, 7, 9, 12, 14, 16, 18, 19, 21, 23, 25, 27, 30, 32, 34, 36} {
		if c := ColorOf(n); c != Red {
			t.Fatalf("expected %d red, got %s", n, c)
		}
	}
}

func TestColorOfBlackNumbers(t *testing.T) {
	for _, n := range []int{2, 4, 6, 8, 10, 11, 13, 15, 17, 20, 22, 24, 26, 28, 29, 31, 33, 35} {
		if c := ColorOf(n); c != Black {
			t.Fatalf("expected %d black, got %s", n, c)
		}
	}
}

func TestBetCode(t *testing.T) {
	if code, ok := BetCode(Red); !ok || code != "48" {
		t.Fatalf("red code: %s ok=%v", code, ok)
	}
	if code, ok := BetCode(Black); !ok || code != "49" {
		t.Fatalf("black code: %s ok=%v", code, ok)
	}
	if _, ok := BetCode(Green); ok {
		t.Fatalf("green must not have a bet code")
	}
}
