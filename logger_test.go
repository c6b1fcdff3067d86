package vdec

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/vdec/codec/codectest"
	"github.com/gogpu/vdec/mixer"
)

func TestNopHandler_Enabled(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
}

func TestNopHandler_Derived(t *testing.T) {
	h := nopHandler{}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("nopHandler.WithAttrs() did not return a nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("nopHandler.WithGroup() did not return a nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Error("Logger() did not return the logger set via SetLogger")
	}
	Logger().Info("test message", "key", "value")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

func TestSessionLoggerFollowsSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	SetLogger(nil)

	l := sessionLogger("abc").WithGroup("upload").With("slot", 3)
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("session logger enabled while vdec is silent")
	}

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Info("late message", "pts", 1.5)

	out := buf.String()
	for _, want := range []string{"late message", "session=abc", "upload.slot=3", "upload.pts=1.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestDecoderRecordsCarrySession(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	f := newFixture(codectest.Script{Video: video(4, 30)})
	d, err := Open("clip.fake", WithRegistry(f.reg))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer d.Close()

	want := "session=" + d.Session().String()
	if !strings.Contains(buf.String(), want) {
		t.Errorf("open record %q does not contain %q", buf.String(), want)
	}
}

// recordingMixer records the logger handed to it.
type recordingMixer struct {
	*mixer.Software
	logger *slog.Logger
}

func (m *recordingMixer) SetLogger(l *slog.Logger) { m.logger = l }

func TestOpenPropagatesLoggerToMixer(t *testing.T) {
	mix := &recordingMixer{Software: mixer.NewSoftware(48000, 2, 1024)}
	f := newFixture(codectest.Script{Video: video(4, 30), Audio: stereo(4)})
	d, err := Open("clip.fake", WithRegistry(f.reg), WithMixer(mix))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer d.Close()

	if mix.logger == nil {
		t.Error("Open did not propagate a logger to the mixer")
	}
}

func TestPropagateLoggerIgnoresOthers(t *testing.T) {
	// Must not panic on values without SetLogger.
	propagateLogger(struct{}{}, Logger())
	propagateLogger(nil, Logger())
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	l := sessionLogger("concurrent")
	var wg sync.WaitGroup
	const goroutines = 100

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Logger() == nil {
				t.Error("Logger() returned nil during concurrent access")
			}
			l.Debug("concurrent read")
		}()
	}
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			SetLogger(nil)
		}()
	}
	wg.Wait()
}

func BenchmarkLoggerDisabledLog(b *testing.B) {
	l := sessionLogger("bench")
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("message", "key", "value")
	}
}
