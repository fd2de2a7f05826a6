package logging_test

import (
	"context"
	"testing"
	"time"

	"cliffhop/server/logging"
	"cliffhop/server/logging/sinks"
)

func newMemoryRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.Memory) {
	t.Helper()
	mem := sinks.NewMemory()
	router, err := logging.NewRouter(logging.SystemClock{}, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, mem
}

func closeRouter(t *testing.T, router *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close router: %v", err)
	}
}

func TestRouterMutesConfiguredCategories(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MutedCategories = []string{logging.CategoryGameplay}
	router, mem := newMemoryRouter(t, cfg)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "player_died", Category: logging.CategoryGameplay, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: "stage_loaded", Category: logging.CategorySimulation, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: "phase_fault", Category: logging.CategoryGameplay, Severity: logging.SeverityError})
	closeRouter(t, router)

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 delivered events, got %d: %+v", len(events), events)
	}
	if events[0].Type != "stage_loaded" {
		t.Fatalf("expected the unmuted category through first, got %s", events[0].Type)
	}
	if events[1].Type != "phase_fault" {
		t.Fatalf("expected the error to bypass the mute, got %s", events[1].Type)
	}
}

func TestRouterDropsBelowSeverityFloor(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, mem := newMemoryRouter(t, cfg)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "tick_detail", Category: logging.CategorySimulation, Severity: logging.SeverityDebug})
	router.Publish(ctx, logging.Event{Type: "queue_warning", Category: logging.CategorySimulation, Severity: logging.SeverityWarn})
	closeRouter(t, router)

	events := mem.Events()
	if len(events) != 1 || events[0].Type != "queue_warning" {
		t.Fatalf("expected only the warning delivered, got %+v", events)
	}
}
