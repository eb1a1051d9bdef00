package recur

import (
	"errors"
	"testing"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
)

func dailySeries() *domain.ICalObject {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(time.Hour)
	o := domain.NewTodo(start)
	o.ID = 7
	o.DTStart = &start
	o.Due = &due
	o.RRule = "FREQ=DAILY;COUNT=10"
	return o
}

func TestExpandHonorsExDatesAndRange(t *testing.T) {
	s := dailySeries()
	s.ExDates = []time.Time{time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)}

	occs, err := Expand(s, nil, Config{
		From: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("expected 2 occurrences (Oct 2 and 4), got %d", len(occs))
	}
	if occs[0].RecurID != "20261002T090000Z" || occs[1].RecurID != "20261004T090000Z" {
		t.Fatalf("unexpected recurids %s %s", occs[0].RecurID, occs[1].RecurID)
	}
	if occs[0].Due == nil || !occs[0].Due.Equal(occs[0].Start.Add(time.Hour)) {
		t.Fatalf("expected due one hour after start, got %v", occs[0].Due)
	}
	for _, o := range occs {
		if o.State != domain.OccurrenceVirtual {
			t.Fatalf("expected virtual occurrence, got %s", o.State)
		}
	}
}

func TestExpandMarksMaterializedOccurrences(t *testing.T) {
	s := dailySeries()
	ex := &domain.ICalObject{ID: 99, UID: s.UID, RecurID: "20261002T090000Z"}
	other := &domain.ICalObject{ID: 100, UID: "someone-else", RecurID: "20261002T090000Z"}

	occs, err := Expand(s, []*domain.ICalObject{ex, other}, Config{
		From: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(occs))
	}
	if occs[1].State != domain.OccurrenceMaterialized || occs[1].ExceptionID != 99 {
		t.Fatalf("expected second occurrence materialized as 99, got %+v", occs[1])
	}
	if occs[0].State != domain.OccurrenceVirtual {
		t.Fatalf("expected first occurrence virtual")
	}
}

func TestExpandAllDaySeriesUsesDateRecurIDs(t *testing.T) {
	j := domain.NewJournal(time.Date(2026, 10, 1, 15, 0, 0, 0, time.UTC))
	j.RRule = "RRULE:FREQ=WEEKLY;COUNT=3"

	occs, err := Expand(j, nil, Config{
		From: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"20261001", "20261008", "20261015"}
	if len(occs) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(occs))
	}
	for i, w := range want {
		if occs[i].RecurID != w {
			t.Fatalf("occurrence %d: expected %s, got %s", i, w, occs[i].RecurID)
		}
	}
}

func TestExpandRejectsPlainEntriesAndBadRules(t *testing.T) {
	plain := domain.NewNote(time.Now())
	if _, err := Expand(plain, nil, Config{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	bad := dailySeries()
	bad.RRule = "FREQ=SOMETIMES"
	if _, err := Expand(bad, nil, Config{To: time.Now()}); err == nil {
		t.Fatalf("expected parse error")
	}

	floating := dailySeries()
	floating.DTStart = nil
	floating.Due = nil
	if _, err := Expand(floating, nil, Config{To: time.Now()}); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
}

func TestAtFindsExactOccurrence(t *testing.T) {
	s := dailySeries()

	occ, err := At(s, time.Date(2026, 10, 4, 9, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if occ.RecurID != "20261004T090000Z" {
		t.Fatalf("unexpected recurid %s", occ.RecurID)
	}

	if _, err := At(s, time.Date(2026, 10, 4, 10, 0, 0, 0, time.UTC), nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound off-pattern, got %v", err)
	}
}
