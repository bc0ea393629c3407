package escrow

import (
	"math/big"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"buyer", RoleBuyer, true},
		{"SELLER", RoleSeller, true},
		{"Courier", RoleCourier, true},
		{"mediator", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseRole(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseRole(%q) accepted invalid role", tc.in)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", testParams(), false},
		{"zero price", Params{Price: big.NewInt(0), ReturnShippingFee: big.NewInt(1)}, true},
		{"negative price", Params{Price: big.NewInt(-5), ReturnShippingFee: big.NewInt(1)}, true},
		{"nil price", Params{ReturnShippingFee: big.NewInt(1)}, true},
		{"negative fee", Params{Price: big.NewInt(10), ReturnShippingFee: big.NewInt(-1)}, true},
		{"nil fee", Params{Price: big.NewInt(10)}, true},
		{"zero fee", Params{Price: big.NewInt(10), ReturnShippingFee: big.NewInt(0)}, false},
		{"percent over 100", Params{Price: big.NewInt(10), ReturnShippingFee: big.NewInt(1), InconvenienceThresholdPercent: 101}, true},
		{"percent at 100", Params{Price: big.NewInt(10), ReturnShippingFee: big.NewInt(1), InconvenienceThresholdPercent: 100}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestInconvenienceFeeFloors(t *testing.T) {
	cases := []struct {
		price   int64
		percent uint32
		want    string
	}{
		{1_000, 50, "500"},
		{999, 50, "499"},
		{1, 50, "0"},
		{1_000, 0, "0"},
		{3, 100, "3"},
	}
	for _, tc := range cases {
		p := Params{
			Price:                         big.NewInt(tc.price),
			ReturnShippingFee:             big.NewInt(0),
			InconvenienceThresholdPercent: tc.percent,
		}
		if got := p.InconvenienceFee().String(); got != tc.want {
			t.Fatalf("InconvenienceFee(price=%d, pct=%d) = %s, want %s", tc.price, tc.percent, got, tc.want)
		}
	}
}

func TestParamsCloneIsIndependent(t *testing.T) {
	orig := testParams()
	clone := orig.Clone()
	clone.Price.SetInt64(1)
	if orig.Price.String() != "1000" {
		t.Fatalf("mutation of clone leaked into the original")
	}
}
