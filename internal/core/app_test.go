package core

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type fakeService struct {
	name     string
	log      *[]string
	startErr error
}

func (s *fakeService) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	*s.log = append(*s.log, "start:"+s.name)
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop:"+s.name)
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	var log []string
	app := NewApp(nil)
	app.Add("a", &fakeService{name: "a", log: &log})
	app.Add("b", &fakeService{name: "b", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if !slices.Equal(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	var log []string
	app := NewApp(nil)
	app.Add("a", &fakeService{name: "a", log: &log})
	app.Add("b", &fakeService{name: "b", log: &log, startErr: errors.New("boom")})

	if err := app.Start(); err == nil {
		t.Fatal("expected error")
	}
	want := []string{"start:a", "stop:a"}
	if !slices.Equal(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	var log []string
	app := NewApp(nil)
	app.Add("a", &fakeService{name: "a", log: &log})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(log, []string{"start:a", "stop:a"}) {
		t.Errorf("log = %v", log)
	}
}
