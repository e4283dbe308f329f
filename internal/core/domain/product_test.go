package domain

import (
	"testing"
	"time"
)

func TestNormalizeProductName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pão Francês", "Pao_Frances"},
		{"Café Expresso", "Cafe_Expresso"},
		{"  Bolo de Chocolate!! ", "Bolo_de_Chocolate"},
		{"Torta__de--Morango", "Torta_de_Morango"},
		{"Cappuccino", "Cappuccino"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeProductName(tt.in); got != tt.want {
			t.Errorf("NormalizeProductName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModelFileName(t *testing.T) {
	if got := ModelFileName("Pão de Açúcar"); got != "prophet_model_Pao_de_Acucar.json" {
		t.Errorf("got %s", got)
	}
}

func TestClassifyDemand(t *testing.T) {
	cases := map[float64]string{
		120: DemandHigh,
		80:  DemandGeneral,
		50:  DemandGeneral,
		30:  DemandGeneral,
		29:  DemandLow,
	}
	for avg, want := range cases {
		if got := ClassifyDemand(avg); got != want {
			t.Errorf("ClassifyDemand(%v) = %s, want %s", avg, got, want)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	sat := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !IsWeekend(sat) || !IsWeekend(sat.AddDate(0, 0, 1)) {
		t.Error("expected saturday and sunday to be weekend")
	}
	if IsWeekend(sat.AddDate(0, 0, 2)) {
		t.Error("monday is not weekend")
	}
}
