package average

import (
	"errors"
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

const tolerance = 1e-9

func testSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%7)
	}
	return out
}

func bruteSMA(values []float64, period, index int) float64 {
	n := period
	if index+1 < n {
		n = index + 1
	}
	var sum float64
	for i := index - n + 1; i <= index; i++ {
		sum += values[i]
	}
	return sum / float64(n)
}

func TestSMA_MatchesBruteForce(t *testing.T) {
	values := testSeries(200)
	for _, p := range []int{1, 2, 3, 7, 20, 50} {
		got, err := Series(SMA, p, values)
		if err != nil {
			t.Fatalf("Series(SMA,%d) failed: %v", p, err)
		}
		for i := range values {
			want := bruteSMA(values, p, i)
			if math.Abs(got[i]-want) > tolerance {
				t.Fatalf("period %d index %d: got %v, want %v", p, i, got[i], want)
			}
		}
	}
}

func TestSMA_FlatSeriesScenario(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	want := []float64{1, 1.5, 2, 3, 4, 5, 6, 7, 8, 9}

	got, err := Series(SMA, 3, values)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tolerance {
			t.Errorf("SMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEMA_WarmUpIsMean(t *testing.T) {
	values := testSeries(30)
	p := 10
	got, err := Series(EMA, p, values)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	for i := 0; i < p; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += values[j]
		}
		want := sum / float64(i+1)
		if math.Abs(got[i]-want) > tolerance {
			t.Errorf("EMA[%d] = %v, want mean %v", i, got[i], want)
		}
	}

	alpha := 2.0 / float64(p+1)
	for i := p; i < len(values); i++ {
		want := values[i]*alpha + got[i-1]*(1-alpha)
		if math.Abs(got[i]-want) > tolerance {
			t.Errorf("EMA[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestWeightSum(t *testing.T) {
	for p := 1; p <= 50; p++ {
		var sum float64
		for w := 1; w <= p; w++ {
			sum += float64(w)
		}
		if WeightSum(p) != sum || sum != float64(p*(p+1)/2) {
			t.Errorf("WeightSum(%d) = %v, want %v", p, WeightSum(p), sum)
		}
	}
}

func TestWMA_ClampedWindow(t *testing.T) {
	values := []float64{2, 4, 6}
	got, err := Series(WMA, 5, values)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	// index 1: (2*1 + 4*2) / 3
	if math.Abs(got[1]-10.0/3.0) > tolerance {
		t.Errorf("WMA[1] = %v, want %v", got[1], 10.0/3.0)
	}
	// index 2: (2*1 + 4*2 + 6*3) / 6
	if math.Abs(got[2]-28.0/6.0) > tolerance {
		t.Errorf("WMA[2] = %v, want %v", got[2], 28.0/6.0)
	}
}

func TestAgainstTalib(t *testing.T) {
	values := testSeries(300)
	cases := []struct {
		kind   Kind
		oracle func([]float64, int) []float64
	}{
		{SMA, talib.Sma},
		{WMA, talib.Wma},
		{EMA, talib.Ema},
	}

	for _, c := range cases {
		for _, p := range []int{2, 5, 14, 30} {
			got, err := Series(c.kind, p, values)
			if err != nil {
				t.Fatalf("%v period %d: %v", c.kind, p, err)
			}
			want := c.oracle(values, p)
			for i := p - 1; i < len(values); i++ {
				if math.Abs(got[i]-want[i]) > 1e-7 {
					t.Fatalf("%v period %d index %d: got %v, talib %v", c.kind, p, i, got[i], want[i])
				}
			}
		}
	}
}

func TestEngine_MultiChannel(t *testing.T) {
	closes := []float64{1, 2, 3, 4}
	highs := []float64{2, 4, 6, 8}
	src := SliceSource{closes, highs}

	e, err := New(SMA, 2, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var last []float64
	for i := range closes {
		last, err = e.Compute(i, src)
		if err != nil {
			t.Fatalf("Compute(%d) failed: %v", i, err)
		}
	}
	if last[0] != 3.5 || last[1] != 7 {
		t.Errorf("expected [3.5 7], got %v", last)
	}
}

// trimmedSource holds only indices >= from.
type trimmedSource struct {
	values []float64
	from   int
}

func (s trimmedSource) Channels() int { return 1 }
func (s trimmedSource) At(_, index int) (float64, bool) {
	if index < s.from || index >= len(s.values) {
		return 0, false
	}
	return s.values[index], true
}

func TestSMA_ColdStartFallsBackToSummation(t *testing.T) {
	values := testSeries(40)
	e, _ := New(SMA, 5, 1)

	// First call at index 30 has no previous average: full window summation.
	got, err := e.Compute(30, trimmedSource{values: values, from: 26})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if math.Abs(got[0]-bruteSMA(values, 5, 30)) > tolerance {
		t.Errorf("cold start SMA = %v, want %v", got[0], bruteSMA(values, 5, 30))
	}
}

func TestSMA_OverTrimmedSourceFails(t *testing.T) {
	values := testSeries(40)
	e, _ := New(SMA, 5, 1)

	_, err := e.Compute(30, trimmedSource{values: values, from: 28})
	if !errors.Is(err, ErrSequence) {
		t.Errorf("expected ErrSequence, got %v", err)
	}
}

func TestEMA_MissingPreviousFails(t *testing.T) {
	values := testSeries(20)
	e, _ := New(EMA, 3, 1)
	src := SliceSource{values}

	if _, err := e.Compute(0, src); err != nil {
		t.Fatalf("Compute(0) failed: %v", err)
	}
	_, err := e.Compute(10, src)
	if !errors.Is(err, ErrSequence) {
		t.Errorf("expected ErrSequence, got %v", err)
	}
}

func TestNew_InvalidPeriod(t *testing.T) {
	for _, p := range []int{0, -3} {
		if _, err := New(SMA, p, 1); !errors.Is(err, ErrPeriod) {
			t.Errorf("period %d: expected ErrPeriod, got %v", p, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"sma": SMA, " WMA ": WMA, "ema": EMA} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("kama"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
