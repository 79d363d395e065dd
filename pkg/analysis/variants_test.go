package analysis_test

import (
	"testing"

	"github.com/sergiubuhatel/ra2/pkg/analysis"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

func TestParseVariantsPrependsBase(t *testing.T) {
	vs, err := analysis.ParseVariants([]string{"unweighted", "thr2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 || vs[0].Name != "base" {
		t.Fatalf("variants = %+v", vs)
	}
}

func TestParseVariantsRejectsUnknown(t *testing.T) {
	if _, err := analysis.ParseVariants([]string{"base", "wat"}); err == nil {
		t.Error("expected error for unknown variant")
	}
	if _, err := analysis.ParseVariants([]string{"thr0"}); err == nil {
		t.Error("expected error for thr0")
	}
	if _, err := analysis.ParseVariants([]string{"thrx"}); err == nil {
		t.Error("expected error for thrx")
	}
}

func TestApplyVariants(t *testing.T) {
	base := []model.Edge{
		{Src: "A", Dst: "B", Weight: 2},
		{Src: "B", Dst: "C", Weight: 1},
	}
	vs, err := analysis.ParseVariants([]string{"base", "unweighted", "thr2"})
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range vs {
		out := v.Apply(base)
		switch v.Name {
		case "base":
			if len(out) != 2 || out[0].Weight != 2 {
				t.Errorf("base variant = %v", out)
			}
		case "unweighted":
			for _, e := range out {
				if e.Weight != 1 {
					t.Errorf("unweighted edge %v", e)
				}
			}
			// Base must stay untouched.
			if base[0].Weight != 2 {
				t.Error("unweighted mutated the base edges")
			}
		case "thr2":
			// S4: only A->B:2 survives.
			if len(out) != 1 || out[0] != (model.Edge{Src: "A", Dst: "B", Weight: 2}) {
				t.Errorf("thr2 variant = %v", out)
			}
		}
	}
}

func TestThresholdVariantMayBeEmpty(t *testing.T) {
	base := []model.Edge{{Src: "A", Dst: "B", Weight: 1}}
	vs, _ := analysis.ParseVariants([]string{"thr3"})
	for _, v := range vs {
		if v.Name == "thr3" {
			if out := v.Apply(base); len(out) != 0 {
				t.Errorf("thr3 = %v, want empty", out)
			}
		}
	}
}
