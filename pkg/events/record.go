package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind is the value of the "event" tag on the wire.
type Kind string

const (
	KindKeyPress     Kind = "key_press"
	KindKeyRelease   Kind = "key_release"
	KindPointerMove  Kind = "mouse_move"
	KindPointerClick Kind = "mouse_click"
	KindPointerWheel Kind = "mouse_scroll"
)

// Record is a single captured input event.
type Record interface {
	Kind() Kind
	Time() time.Time
}

// KeyPress records a key going down.
type KeyPress struct {
	Key string
	At  time.Time
}

// KeyRelease records a key coming up.
type KeyRelease struct {
	Key string
	At  time.Time
}

// PointerMove records the pointer position after motion.
type PointerMove struct {
	X, Y int
	At   time.Time
}

// PointerClick records a button press or release at a position.
type PointerClick struct {
	X, Y    int
	Button  string
	Pressed bool
	At      time.Time
}

// PointerScroll records wheel motion at a position.
type PointerScroll struct {
	X, Y   int
	DX, DY int
	At     time.Time
}

func (KeyPress) Kind() Kind      { return KindKeyPress }
func (KeyRelease) Kind() Kind    { return KindKeyRelease }
func (PointerMove) Kind() Kind   { return KindPointerMove }
func (PointerClick) Kind() Kind  { return KindPointerClick }
func (PointerScroll) Kind() Kind { return KindPointerWheel }

func (r KeyPress) Time() time.Time      { return r.At }
func (r KeyRelease) Time() time.Time    { return r.At }
func (r PointerMove) Time() time.Time   { return r.At }
func (r PointerClick) Time() time.Time  { return r.At }
func (r PointerScroll) Time() time.Time { return r.At }

type keyWire struct {
	Event     Kind    `json:"event"`
	Key       string  `json:"key"`
	Timestamp float64 `json:"timestamp"`
}

type moveWire struct {
	Event     Kind    `json:"event"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

type clickWire struct {
	Event     Kind    `json:"event"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Button    string  `json:"button"`
	Pressed   bool    `json:"pressed"`
	Timestamp float64 `json:"timestamp"`
}

type scrollWire struct {
	Event     Kind    `json:"event"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	DX        int     `json:"dx"`
	DY        int     `json:"dy"`
	Timestamp float64 `json:"timestamp"`
}

// Encode renders a record as a single JSON line without the trailing newline.
func Encode(rec Record) ([]byte, error) {
	var wire any
	switch r := rec.(type) {
	case KeyPress:
		wire = keyWire{Event: r.Kind(), Key: r.Key, Timestamp: epochSeconds(r.At)}
	case KeyRelease:
		wire = keyWire{Event: r.Kind(), Key: r.Key, Timestamp: epochSeconds(r.At)}
	case PointerMove:
		wire = moveWire{Event: r.Kind(), X: r.X, Y: r.Y, Timestamp: epochSeconds(r.At)}
	case PointerClick:
		wire = clickWire{Event: r.Kind(), X: r.X, Y: r.Y, Button: r.Button, Pressed: r.Pressed, Timestamp: epochSeconds(r.At)}
	case PointerScroll:
		wire = scrollWire{Event: r.Kind(), X: r.X, Y: r.Y, DX: r.DX, DY: r.DY, Timestamp: epochSeconds(r.At)}
	default:
		return nil, fmt.Errorf("unsupported record %T", rec)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses one JSON line into its concrete record.
func Decode(line []byte) (Record, error) {
	var head struct {
		Event Kind `json:"event"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch head.Event {
	case KindKeyPress, KindKeyRelease:
		var w keyWire
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		if head.Event == KindKeyPress {
			return KeyPress{Key: w.Key, At: fromEpochSeconds(w.Timestamp)}, nil
		}
		return KeyRelease{Key: w.Key, At: fromEpochSeconds(w.Timestamp)}, nil
	case KindPointerMove:
		var w moveWire
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return PointerMove{X: w.X, Y: w.Y, At: fromEpochSeconds(w.Timestamp)}, nil
	case KindPointerClick:
		var w clickWire
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return PointerClick{X: w.X, Y: w.Y, Button: w.Button, Pressed: w.Pressed, At: fromEpochSeconds(w.Timestamp)}, nil
	case KindPointerWheel:
		var w scrollWire
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return PointerScroll{X: w.X, Y: w.Y, DX: w.DX, DY: w.DY, At: fromEpochSeconds(w.Timestamp)}, nil
	case "":
		return nil, fmt.Errorf("decode event: missing event tag")
	default:
		return nil, fmt.Errorf("decode event: unknown event %q", head.Event)
	}
}

// DecodeLines parses a newline separated log payload. Blank lines are skipped.
func DecodeLines(payload string) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(strings.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		rec, err := Decode(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return records, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromEpochSeconds(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	micros := int64(math.Round(frac * 1e6))
	return time.UnixMicro(int64(whole)*1e6 + micros).UTC()
}
