package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	events *[]string
	name   string
	fail   bool
}

func (r recorder) Name() string { return r.name }

func (r recorder) Start(context.Context) error {
	if r.fail {
		return errors.New("boom")
	}
	*r.events = append(*r.events, "start "+r.name)
	return nil
}

func (r recorder) Stop(context.Context) { *r.events = append(*r.events, "stop "+r.name) }

func TestManagerOrder(t *testing.T) {
	var events []string
	m := NewManager(nil, recorder{&events, "a", false}, nil)
	if err := m.Add(recorder{&events, "b", false}); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(recorder{&events, "c", false}); err == nil {
		t.Error("Add after Start accepted")
	}
	m.Stop(context.Background())
	m.Stop(context.Background())
	want := []string{"start a", "start b", "stop b", "stop a"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events %v, want %v", events, want)
	}
}

func TestManagerRollsBack(t *testing.T) {
	var events []string
	m := NewManager(nil, recorder{&events, "a", false}, recorder{&events, "b", true})
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	want := []string{"start a", "stop a"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events %v, want %v", events, want)
	}
}
