package service

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/pulse/internal/instrument"
)

// TruncationMarker ends captured arguments that exceeded the size cap.
const TruncationMarker = "...[truncated]"

const defaultArgumentsMaxBytes = 2048

// ArgumentCaptureOptions configures job argument capture.
type ArgumentCaptureOptions struct {
	Enabled bool
	// Expression is an optional JMESPath projection applied to the JSON form of the arguments.
	Expression string
	MaxBytes   int
}

// ArgumentCapture serializes job arguments for the arguments column.
type ArgumentCapture struct {
	enabled    bool
	expression jmespath.JMESPath
	maxBytes   int
}

// NewArgumentCapture validates the projection expression up front.
func NewArgumentCapture(opts ArgumentCaptureOptions) (*ArgumentCapture, error) {
	var compiled jmespath.JMESPath
	if expr := strings.TrimSpace(opts.Expression); expr != "" {
		var err error
		compiled, err = jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile arguments expression %q: %w", expr, err)
		}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultArgumentsMaxBytes
	}
	if maxBytes <= len(TruncationMarker) {
		maxBytes = len(TruncationMarker) + 1
	}
	return &ArgumentCapture{enabled: opts.Enabled, expression: compiled, maxBytes: maxBytes}, nil
}

// Capture returns the encoded arguments, or nil when capture is disabled or args is nil.
func (a *ArgumentCapture) Capture(args any) (*string, error) {
	if a == nil || !a.enabled || args == nil {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	if a.expression != nil {
		raw, err = a.project(raw)
		if err != nil {
			return nil, err
		}
	}
	out := truncateUTF8(string(raw), a.maxBytes)
	return &out, nil
}

func (a *ArgumentCapture) project(raw []byte) ([]byte, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	projected, err := a.expression.Search(data)
	if err != nil {
		return nil, fmt.Errorf("project arguments: %w", err)
	}
	out, err := json.Marshal(projected)
	if err != nil {
		return nil, fmt.Errorf("encode projected arguments: %w", err)
	}
	return out, nil
}

// truncateUTF8 caps s at maxBytes including the marker, cutting on a rune boundary.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return instrument.CutUTF8(s, maxBytes-len(TruncationMarker)) + TruncationMarker
}
