package storage

import "testing"

func TestConditionEval(t *testing.T) {
	rec := Record{
		"state":    "active",
		"fund":     float64(100),
		"pastBids": []interface{}{},
	}

	cases := []struct {
		name string
		cond *Condition
		rec  Record
		want bool
	}{
		{"nil condition holds", nil, rec, true},
		{"eq match", Where("state", OpEq, "active"), rec, true},
		{"eq mismatch", Where("state", OpEq, "archived"), rec, false},
		{"ne", Where("state", OpNe, "archived"), rec, true},
		{"ge holds", Where("fund", OpGe, uint64(100)), rec, true},
		{"ge fails", Where("fund", OpGe, uint64(101)), rec, false},
		{"lt", Where("fund", OpLt, 200), rec, true},
		{"in member", Where("state", OpIn, []string{"inactive", "active"}), rec, true},
		{"in non-member", Where("state", OpIn, []string{"inactive", "failed"}), rec, false},
		{"exists", Where("fund", OpExists, nil), rec, true},
		{"not exists on present field", Where("fund", OpNotExists, nil), rec, false},
		{"not exists on absent field", Where("soldBid", OpNotExists, nil), rec, true},
		{"empty list", Where("pastBids", OpEmpty, nil), rec, true},
		{"empty on absent field", Where("winners", OpEmpty, nil), rec, true},
		{"conjunction", Where("state", OpEq, "active").And("fund", OpGe, 50), rec, true},
		{"conjunction short-circuits", Where("state", OpEq, "active").And("fund", OpGe, 500), rec, false},
		{"absent record eq fails", Where("state", OpEq, "active"), nil, false},
		{"absent record not-exists holds", Where("id", OpNotExists, nil), nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Eval(tc.rec); got != tc.want {
				t.Fatalf("Eval() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionEqUsesJSONShape(t *testing.T) {
	type ref struct {
		BuyerID string `json:"buyerId"`
		ID      string `json:"id"`
	}
	rec := Record{"currentBid": map[string]interface{}{"buyerId": "b1", "id": "x"}}

	if !Where("currentBid", OpEq, ref{BuyerID: "b1", ID: "x"}).Eval(rec) {
		t.Fatal("typed value should compare equal to its stored JSON form")
	}
	if Where("currentBid", OpEq, ref{BuyerID: "b2", ID: "x"}).Eval(rec) {
		t.Fatal("different ref should not compare equal")
	}
}

func TestApplyChanges(t *testing.T) {
	rec := Record{"fund": float64(100), "fundOnHold": float64(20)}

	out, err := ApplyChanges(rec, []Change{
		Add("fund", -30),
		Add("fundOnHold", 30),
		Set("state", "active"),
		Append("pastBids", "b1"),
	})
	if err != nil {
		t.Fatalf("ApplyChanges failed: %v", err)
	}
	if out["fund"].(float64) != 70 || out["fundOnHold"].(float64) != 50 {
		t.Fatalf("unexpected balances: %v / %v", out["fund"], out["fundOnHold"])
	}
	if out["state"] != "active" {
		t.Fatalf("set did not apply: %v", out["state"])
	}
	if list := out["pastBids"].([]interface{}); len(list) != 1 || list[0] != "b1" {
		t.Fatalf("append did not apply: %v", out["pastBids"])
	}

	// the input record is never mutated
	if rec["fund"].(float64) != 100 {
		t.Fatalf("input record mutated: %v", rec["fund"])
	}
}

func TestApplyChangesRejectsNegativeResult(t *testing.T) {
	rec := Record{"fund": float64(10)}
	if _, err := ApplyChanges(rec, []Change{Add("fund", -11)}); err == nil {
		t.Fatal("expected error for negative result")
	}
}

func TestApplyChangesRemove(t *testing.T) {
	rec := Record{"currentBid": map[string]interface{}{"id": "x"}}
	out, err := ApplyChanges(rec, []Change{Remove("currentBid")})
	if err != nil {
		t.Fatalf("ApplyChanges failed: %v", err)
	}
	if _, ok := out["currentBid"]; ok {
		t.Fatal("remove did not clear the field")
	}
}
