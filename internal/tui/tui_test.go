package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/verdict"
)

type classifierFunc func(ctx context.Context, file selection.File) (verdict.Verdict, error)

func (f classifierFunc) Classify(ctx context.Context, file selection.File) (verdict.Verdict, error) {
	return f(ctx, file)
}

func setupModel(t *testing.T, classify classifierFunc) (Model, *session.Session) {
	t.Helper()
	logger := zap.NewNop()
	sess := session.New(selection.NewStore(nil, logger), classify, logger)
	t.Cleanup(func() { _ = sess.Close(context.Background()) })

	path := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(path, []byte("fake-png"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	m, unsubscribe := New(context.Background(), sess, path)
	t.Cleanup(unsubscribe)
	newM, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return newM.(Model), sess
}

func press(m Model, k tea.KeyMsg) Model {
	newM, _ := m.Update(k)
	return newM.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// settle waits for the session and delivers the resulting update.
func settle(t *testing.T, m Model, sess *session.Session) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := sess.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	msg := waitForState(m.updates)()
	newM, _ := m.Update(msg)
	return newM.(Model)
}

func TestSelectThenAnalyzeNegative(t *testing.T) {
	m, sess := setupModel(t, func(context.Context, selection.File) (verdict.Verdict, error) {
		return verdict.NoFinding, nil
	})

	if strings.Contains(m.View(), "a analyze scan") {
		t.Error("analyze must not be offered before a selection")
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.input.Focused() {
		t.Fatal("expected input to blur after selection")
	}
	if m.fileName != "scan.png" {
		t.Fatalf("expected scan.png selected, got %q", m.fileName)
	}
	if !strings.Contains(m.View(), "a analyze scan") {
		t.Error("expected analyze to be offered")
	}

	m = press(m, runes("a"))
	if m.state.Phase != session.InFlight && m.state.Phase != session.Succeeded {
		t.Fatalf("expected in-flight state after analyze, got %s", m.state.Phase)
	}

	m = settle(t, m, sess)
	if m.state.Phase != session.Succeeded {
		t.Fatalf("expected succeeded, got %s", m.state.Phase)
	}
	view := m.View()
	if !strings.Contains(view, "Congratulations! No brain tumor detected.") {
		t.Errorf("expected negative message, got:\n%s", view)
	}
	if strings.Contains(view, "Find a Physician") || strings.Contains(view, "a analyze scan") {
		t.Errorf("unexpected actions in view:\n%s", view)
	}
}

func TestPositiveVerdictShowsReferral(t *testing.T) {
	m, sess := setupModel(t, func(context.Context, selection.File) (verdict.Verdict, error) {
		return "Pituitary", nil
	})
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(m, runes("a"))
	m = settle(t, m, sess)

	view := m.View()
	if !strings.Contains(view, "Brain tumor detected") || !strings.Contains(view, "Find a Physician") {
		t.Errorf("expected positive message with referral, got:\n%s", view)
	}
}

func TestInFlightShowsSpinnerAndHidesAnalyze(t *testing.T) {
	release := make(chan struct{})
	m, sess := setupModel(t, func(ctx context.Context, _ selection.File) (verdict.Verdict, error) {
		select {
		case <-release:
			return "", errors.New("boom")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(m, runes("a"))

	view := m.View()
	if !strings.Contains(view, "Analyzing...") {
		t.Errorf("expected loading indicator, got:\n%s", view)
	}
	if strings.Contains(view, "a analyze scan") {
		t.Error("analyze must be hidden while in flight")
	}

	// A second press is ignored rather than reported.
	m = press(m, runes("a"))
	if m.notice != "" {
		t.Errorf("unexpected notice %q", m.notice)
	}

	close(release)
	m = settle(t, m, sess)
	view = m.View()
	if !strings.Contains(view, session.FailureMessage) || !strings.Contains(view, "a analyze scan") {
		t.Errorf("expected failure message with retry, got:\n%s", view)
	}
}

func TestMissingFileKeepsPickerOpen(t *testing.T) {
	m, _ := setupModel(t, func(context.Context, selection.File) (verdict.Verdict, error) {
		return verdict.NoFinding, nil
	})
	m.input.SetValue(filepath.Join(t.TempDir(), "missing.png"))
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	if !m.input.Focused() {
		t.Error("expected input to stay focused")
	}
	if m.notice == "" || m.fileName != "" {
		t.Errorf("expected notice and no selection, got notice=%q file=%q", m.notice, m.fileName)
	}
}

func TestEscapeKeepsSelection(t *testing.T) {
	m, _ := setupModel(t, func(context.Context, selection.File) (verdict.Verdict, error) {
		return verdict.NoFinding, nil
	})
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(m, runes("o"))
	if !m.input.Focused() {
		t.Fatal("expected picker to reopen")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.input.Focused() || m.fileName != "scan.png" {
		t.Errorf("expected previous selection kept, got focused=%v file=%q", m.input.Focused(), m.fileName)
	}
}

func TestHelpFollowsKeyBindings(t *testing.T) {
	m, _ := setupModel(t, func(context.Context, selection.File) (verdict.Verdict, error) {
		return verdict.NoFinding, nil
	})

	view := m.View()
	for _, b := range []struct{ key, desc string }{
		{keys.Select.Help().Key, keys.Select.Help().Desc},
		{keys.Interrupt.Help().Key, keys.Interrupt.Help().Desc},
	} {
		if !strings.Contains(view, b.key+" "+b.desc) {
			t.Errorf("expected help %q %q in picker view:\n%s", b.key, b.desc, view)
		}
	}

	// q is part of a path while typing.
	m = press(m, runes("q"))
	if !m.input.Focused() || !strings.HasSuffix(m.input.Value(), "q") {
		t.Fatalf("expected q to be typed into the picker, got %q", m.input.Value())
	}

	m.input.SetValue(filepath.Join(filepath.Dir(m.input.Value()), "scan.png"))
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	view = m.View()
	for _, want := range []string{"o choose image", "a analyze scan", "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected help %q after selection:\n%s", want, view)
		}
	}
}
