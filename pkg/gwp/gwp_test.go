package gwp

import "testing"

func TestResolveKnownVersions(t *testing.T) {
	ar5 := Resolve("IPCC_AR5")
	if ar5["CH4"] != 28.0 {
		t.Errorf("AR5 CH4: expected 28, got %v", ar5["CH4"])
	}
	ar6 := Resolve("IPCC_AR6")
	if ar6["CH4"] != 27.2 {
		t.Errorf("AR6 CH4: expected 27.2, got %v", ar6["CH4"])
	}
	if ar6["N2O"] != 273.0 {
		t.Errorf("AR6 N2O: expected 273, got %v", ar6["N2O"])
	}
}

func TestResolveNormalizesTag(t *testing.T) {
	table := Resolve("  ipcc ar6  ")
	if table["CH4"] != 27.2 {
		t.Errorf("expected normalized lookup to hit AR6, got CH4=%v", table["CH4"])
	}
}

func TestResolveFallsBack(t *testing.T) {
	for _, tag := range []string{"", "UNKNOWN_VERSION", "SAR"} {
		table := Resolve(tag)
		if table["CH4"] != 28.0 {
			t.Errorf("tag %q: expected AR5 fallback, got CH4=%v", tag, table["CH4"])
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" ipcc 2013 gwp100 "); got != "IPCC_2013_GWP100" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
