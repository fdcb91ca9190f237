package pagespeed

import (
	"reflect"
	"testing"
)

func TestStrategy_Expand(t *testing.T) {
	tests := []struct {
		name string
		in   Strategy
		want []Strategy
	}{
		{"desktop", StrategyDesktop, []Strategy{StrategyDesktop}},
		{"mobile", StrategyMobile, []Strategy{StrategyMobile}},
		{"both keeps desktop first", StrategyBoth, []Strategy{StrategyDesktop, StrategyMobile}},
		{"empty defaults to desktop", "", []Strategy{StrategyDesktop}},
		{"unknown passes through", "tablet", []Strategy{"tablet"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Expand(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expand(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestStrategy_ExpandIsStable(t *testing.T) {
	first := StrategyBoth.Expand()
	for i := 0; i < 10; i++ {
		if got := StrategyBoth.Expand(); !reflect.DeepEqual(got, first) {
			t.Fatalf("Expand(both) changed between calls: %v vs %v", got, first)
		}
	}
}
