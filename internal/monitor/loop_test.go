package monitor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"cloudpico-display/internal/display"
	"cloudpico-display/internal/sensor"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := make(map[string]slog.Value)
	m["msg"] = slog.StringValue(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

// fakeSensor returns the queued readings in order, then err.
type fakeSensor struct {
	readings []sensor.Measurement
	err      error
	calls    int
	cancel   context.CancelFunc // called once readings run out, when set
}

func (s *fakeSensor) Measure(ctx context.Context) (sensor.Measurement, error) {
	s.calls++
	if len(s.readings) == 0 {
		if s.cancel != nil {
			s.cancel()
			return sensor.Measurement{}, ctx.Err()
		}
		return sensor.Measurement{}, s.err
	}
	m := s.readings[0]
	s.readings = s.readings[1:]
	return m, nil
}

type recordingRenderer struct {
	frames [][]display.Line
	err    error
}

func (r *recordingRenderer) Render(lines []display.Line) error {
	r.frames = append(r.frames, append([]display.Line(nil), lines...))
	return r.err
}

// recordingPanel counts flushes and keeps the last frame.
type recordingPanel struct {
	flushes int
	last    []byte
}

func (p *recordingPanel) Bounds() image.Rectangle { return image.Rect(0, 0, 128, 64) }

func (p *recordingPanel) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	p.flushes++
	p.last = append([]byte(nil), src.(*image1bit.VerticalLSB).Pix...)
	return nil
}

const greeting = "I love you, Mercedes!"

func TestStep_RendersThreeLines(t *testing.T) {
	s := &fakeSensor{readings: []sensor.Measurement{{Temperature: 20.0, Humidity: 50.0}}}
	r := &recordingRenderer{}
	loop := New(s, r, slog.New(&captureHandler{}), greeting)

	if err := loop.Step(context.Background()); err != nil {
		t.Fatalf("Step() err = %v; want nil", err)
	}
	if len(r.frames) != 1 {
		t.Fatalf("Render calls = %d; want 1", len(r.frames))
	}

	want := []display.Line{
		{Text: "I love you, Mercedes!", At: image.Pt(0, 0)},
		{Text: "Temp: 68.0 °F", At: image.Pt(0, 16)},
		{Text: "Humidity: %50.0", At: image.Pt(0, 48)},
	}
	got := r.frames[0]
	if len(got) != len(want) {
		t.Fatalf("lines = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestStep_EndToEndWithDisplay(t *testing.T) {
	p := &recordingPanel{}
	d, err := display.New(p, display.Options{FlushAfterClear: true})
	if err != nil {
		t.Fatalf("display.New() err = %v", err)
	}
	s := &fakeSensor{readings: []sensor.Measurement{{Temperature: 20.0, Humidity: 50.0}}}
	loop := New(s, d, slog.New(&captureHandler{}), greeting)

	if err := loop.Step(context.Background()); err != nil {
		t.Fatalf("Step() err = %v; want nil", err)
	}
	if p.flushes != 2 {
		t.Errorf("flushes = %d; want 2 (blank, then text)", p.flushes)
	}

	ref := &recordingPanel{}
	want, err := display.New(ref, display.Options{})
	if err != nil {
		t.Fatalf("display.New() err = %v", err)
	}
	if err := want.Render([]display.Line{
		{Text: "I love you, Mercedes!", At: image.Pt(0, 0)},
		{Text: "Temp: 68.0 °F", At: image.Pt(0, 16)},
		{Text: "Humidity: %50.0", At: image.Pt(0, 48)},
	}); err != nil {
		t.Fatalf("reference Render() err = %v", err)
	}
	if !bytes.Equal(p.last, ref.last) {
		t.Error("flushed frame differs from the expected three-line layout")
	}
}

func TestStep_Errors(t *testing.T) {
	t.Run("measure failure skips render", func(t *testing.T) {
		nack := errors.New("i2c nack")
		s := &fakeSensor{err: nack}
		r := &recordingRenderer{}
		loop := New(s, r, nil, greeting)

		if err := loop.Step(context.Background()); !errors.Is(err, nack) {
			t.Errorf("Step() err = %v; want %v", err, nack)
		}
		if len(r.frames) != 0 {
			t.Errorf("Render calls = %d; want 0", len(r.frames))
		}
	})

	t.Run("render failure", func(t *testing.T) {
		flush := errors.New("flush failed")
		s := &fakeSensor{readings: []sensor.Measurement{{Temperature: 20, Humidity: 50}}}
		r := &recordingRenderer{err: flush}
		loop := New(s, r, nil, greeting)

		if err := loop.Step(context.Background()); !errors.Is(err, flush) {
			t.Errorf("Step() err = %v; want %v", err, flush)
		}
	})
}

func TestStep_LogsMeasurement(t *testing.T) {
	h := &captureHandler{}
	s := &fakeSensor{readings: []sensor.Measurement{{Temperature: -5.0, Humidity: 47.26}}}
	loop := New(s, &recordingRenderer{}, slog.New(h), greeting)

	if err := loop.Step(context.Background()); err != nil {
		t.Fatalf("Step() err = %v", err)
	}
	recs := h.recordsFor(t, "display updated")
	if len(recs) != 1 {
		t.Fatalf("display updated records = %d; want 1", len(recs))
	}
	if got := recs[0]["temperature_text"].String(); got != "Temp: 23.0 °F" {
		t.Errorf("temperature_text = %q; want %q", got, "Temp: 23.0 °F")
	}
	if got := recs[0]["humidity_text"].String(); got != "Humidity: %47.3" {
		t.Errorf("humidity_text = %q; want %q", got, "Humidity: %47.3")
	}
	if got := recs[0]["iteration"].Uint64(); got != 1 {
		t.Errorf("iteration = %d; want 1", got)
	}
}

func TestRun(t *testing.T) {
	t.Run("stops at the first failure", func(t *testing.T) {
		nack := errors.New("i2c nack")
		s := &fakeSensor{
			readings: []sensor.Measurement{{Temperature: 20, Humidity: 50}, {Temperature: 21, Humidity: 51}},
			err:      nack,
		}
		r := &recordingRenderer{}
		loop := New(s, r, slog.New(&captureHandler{}), greeting)

		if err := loop.Run(context.Background()); !errors.Is(err, nack) {
			t.Fatalf("Run() err = %v; want %v", err, nack)
		}
		if len(r.frames) != 2 {
			t.Errorf("Render calls = %d; want 2", len(r.frames))
		}
		if s.calls != 3 {
			t.Errorf("Measure calls = %d; want 3", s.calls)
		}
	})

	t.Run("returns context error on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := &fakeSensor{
			readings: []sensor.Measurement{{Temperature: 20, Humidity: 50}},
			cancel:   cancel,
		}
		r := &recordingRenderer{}
		loop := New(s, r, slog.New(&captureHandler{}), greeting)

		if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() err = %v; want %v", err, context.Canceled)
		}
		if len(r.frames) != 1 {
			t.Errorf("Render calls = %d; want 1", len(r.frames))
		}
	})

	t.Run("already cancelled never measures", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := &fakeSensor{}
		loop := New(s, &recordingRenderer{}, slog.New(&captureHandler{}), greeting)

		if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() err = %v; want %v", err, context.Canceled)
		}
		if s.calls != 0 {
			t.Errorf("Measure calls = %d; want 0", s.calls)
		}
	})
}
