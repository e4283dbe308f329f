package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/demandcast/internal/core/errs"
)

func TestStore_SaveLoadList(t *testing.T) {
	s := NewStore(t.TempDir())
	m := &Model{Product: "Pão Francês", Intercept: 80, IntervalWidth: 5}
	if err := s.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background(), "Pão Francês")
	if err != nil || got.Intercept != 80 {
		t.Fatalf("Load: %+v, %v", got, err)
	}
	names, err := s.List()
	if err != nil || len(names) != 1 || names[0] != "Pao_Frances" {
		t.Errorf("List: %v, %v", names, err)
	}
	st, err := s.Stats()
	if err != nil || st.Count != 1 || st.TotalBytes == 0 {
		t.Errorf("Stats: %+v, %v", st, err)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load(context.Background(), "Croissant")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("got %v", err)
	}
	e, ok := errs.As(err)
	if !ok || e.Category() != errs.CategoryFileSystem || e.Severity() != errs.SeverityHigh {
		t.Errorf("got %v", err)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prophet_model_Croissant.json"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(dir).Load(context.Background(), "Croissant"); err == nil || errors.Is(err, ErrModelNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestStore_MissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	if _, err := s.Stats(); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestModel_Predict(t *testing.T) {
	origin := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) // Saturday
	m := &Model{
		Origin:        origin,
		Intercept:     50,
		Slope:         1,
		Regressors:    map[string]float64{"promotion": 10},
		IntervalWidth: 5,
	}
	m.Weekly[time.Saturday] = 20

	preds := m.Predict(origin, 3, map[string]float64{"promotion": 1})
	if len(preds) != 3 {
		t.Fatalf("len = %d", len(preds))
	}
	if preds[0].PredictedDemand != 80 || preds[0].LowerBound != 75 || preds[0].UpperBound != 85 {
		t.Errorf("day 0 = %+v", preds[0])
	}
	if preds[1].PredictedDemand != 61 {
		t.Errorf("day 1 = %+v", preds[1])
	}

	m.Intercept = -100
	for _, p := range m.Predict(origin, 2, nil) {
		if p.PredictedDemand < 0 || p.LowerBound < 0 {
			t.Errorf("negative demand %+v", p)
		}
	}
}
