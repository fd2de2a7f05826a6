package sinks

import (
	"context"
	"fmt"
	"io"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"cliffhop/server/logging"
)

// Console renders events as human-readable key-value lines.
type Console struct {
	logger *charmlog.Logger
}

func NewConsole(w io.Writer, cfg logging.ConsoleConfig) *Console {
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
	})
	if !cfg.UseColor {
		logger.SetColorProfile(termenv.Ascii)
	}
	return &Console{logger: logger}
}

func (s *Console) Write(event logging.Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	keyvals := []any{"tick", event.Tick}
	if event.Actor.ID != "" || event.Actor.Kind != "" {
		keyvals = append(keyvals, "actor", formatEntity(event.Actor))
	}
	if len(event.Targets) > 0 {
		keyvals = append(keyvals, "targets", formatTargets(event.Targets))
	}
	if event.Category != "" {
		keyvals = append(keyvals, "category", event.Category)
	}
	if event.Payload != nil {
		keyvals = append(keyvals, "payload", event.Payload)
	}
	for k, v := range event.Extra {
		keyvals = append(keyvals, k, v)
	}
	msg := string(event.Type)
	switch event.Severity {
	case logging.SeverityDebug:
		s.logger.Debug(msg, keyvals...)
	case logging.SeverityWarn:
		s.logger.Warn(msg, keyvals...)
	case logging.SeverityError:
		s.logger.Error(msg, keyvals...)
	default:
		s.logger.Info(msg, keyvals...)
	}
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return strings.Join(parts, ",")
}
