package money

import "testing"

func TestCeil(t *testing.T) {
	cases := []struct {
		in     Money
		places int32
		want   string
	}{
		{MustParse("1.0001"), 3, "1.001000"},
		{MustParse("1.000"), 3, "1.000000"},
		{MustParse("0.0001"), 3, "0.001000"},
		{Zero, 3, "0.000000"},
	}
	for _, c := range cases {
		got := Ceil(c.in, c.places)
		if got.String() != c.want {
			t.Errorf("Ceil(%s, %d) = %s, want %s", c.in, c.places, got, c.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := MustParse("10.020000")
	b := a.MulInt64(300)
	if b.String() != "3006.000000" {
		t.Errorf("got %s", b)
	}

	sum := a.Add(Cent)
	if sum.String() != "10.030000" {
		t.Errorf("got %s", sum)
	}

	if !One.GreaterThan(Zero) {
		t.Error("One should be > Zero")
	}
	if !Cent.LessThan(One) {
		t.Error("Cent should be < One")
	}
}

func TestRational(t *testing.T) {
	notional := MustParse("1000.00")
	rate := NewRational(1, 4) // 0.25
	got := notional.MulRational(rate)
	if got.String() != "250.000000" {
		t.Errorf("got %s", got)
	}
}

func TestAbsNeg(t *testing.T) {
	neg := MustParse("-5.50")
	if neg.Abs().String() != "5.500000" {
		t.Errorf("got %s", neg.Abs())
	}
	if !neg.IsNegative() {
		t.Error("expected negative")
	}
}
