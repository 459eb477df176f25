package order

import "testing"

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Fatal("buy's opposite should be sell")
	}
	if SideSell.Opposite() != SideBuy {
		t.Fatal("sell's opposite should be buy")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusFilled, StatusCancelled, StatusRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []Status{StatusNew, StatusPartiallyFilled}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrderFilled(t *testing.T) {
	o := &Order{OriginalQty: 10, RemainingQty: 0}
	if !o.Filled() {
		t.Fatal("zero remaining qty should be filled")
	}
	o.RemainingQty = 1
	if o.Filled() {
		t.Fatal("positive remaining qty should not be filled")
	}
}

func TestFormatMinor(t *testing.T) {
	cases := []struct {
		minor int64
		want  string
	}{
		{10025, "100.25"},
		{0, "0.00"},
		{5, "0.05"},
		{-250, "-2.50"},
	}
	for _, c := range cases {
		if got := FormatMinor(c.minor); got != c.want {
			t.Errorf("FormatMinor(%d) = %q, want %q", c.minor, got, c.want)
		}
	}
}
