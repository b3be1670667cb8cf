package pipelinetest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Echo copies every memory-resident input i to output i and prints how many
// it copied.
func Echo(ctx context.Context, m *Module) int {
	n := m.Inputs()
	for i := range n {
		if err := m.CopyInput(i, i); err != nil {
			m.Errorf("echo: %v\n", err)
			return 1
		}
	}
	m.Printf("echoed %d inputs\n", n)
	return 0
}

// Fail returns a pipeline that writes stderr and returns rc from its entry
// point.
func Fail(rc int, stderr string) Func {
	return func(ctx context.Context, m *Module) int {
		m.Errorf("%s", stderr)
		return rc
	}
}

// Exit returns a pipeline that writes stderr and exits with rc.
func Exit(rc int, stderr string) Func {
	return func(ctx context.Context, m *Module) int {
		m.Errorf("%s", stderr)
		return m.Exit(rc)
	}
}

// Block returns a pipeline that signals started and then runs until release
// is closed or the instance is aborted.
func Block(started chan<- struct{}, release <-chan struct{}) Func {
	return func(ctx context.Context, m *Module) int {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return 0
		case <-ctx.Done():
			return 1
		}
	}
}

// PresentationState is the descriptor the fake presentation-state pipeline
// reads from its --pstate-file.
type PresentationState struct {
	Rows         int     `json:"rows"`
	Columns      int     `json:"columns"`
	WindowCenter float64 `json:"windowCenter"`
	WindowWidth  float64 `json:"windowWidth"`
	Description  string  `json:"description,omitempty"`
}

// ApplyPresentationState mimics apply-pstate-to-image. The image file holds
// raw 8-bit pixels, Rows*Columns of them; the result is the windowed bitmap
// and a text rendering of the applied state.
//
// Usage: <image> <pstate-out> <bitmap-out> --memory-io --pstate-file f
// [--config-file f] [--frame n] [--pstate-output] [--bitmap-output]
// [--pgm] [--dicom]
func ApplyPresentationState(ctx context.Context, m *Module) int {
	ids, flags := m.Positional()
	if len(ids) != 3 {
		m.Errorf("expected 3 positional arguments, got %d\n", len(ids))
		return m.Exit(105)
	}
	for _, id := range ids[1:] {
		if id != "0" && id != "1" {
			m.Errorf("unknown output identifier %q\n", id)
			return m.Exit(106)
		}
	}

	var (
		pstateFile string
		frame      = 1
		pstateOut  bool
		bitmapOut  bool
		pgm        bool
	)
	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case "--memory-io", "--dicom":
		case "--pstate-output":
			pstateOut = true
		case "--bitmap-output":
			bitmapOut = true
		case "--pgm":
			pgm = true
		case "--pstate-file", "--config-file", "--frame":
			if i+1 >= len(flags) {
				m.Errorf("%s requires a value\n", flags[i])
				return m.Exit(107)
			}
			v := flags[i+1]
			i++
			switch flags[i-1] {
			case "--pstate-file":
				pstateFile = v
			case "--frame":
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					m.Errorf("--frame: invalid value %q\n", v)
					return m.Exit(107)
				}
				frame = n
			}
		default:
			m.Errorf("The following argument was not expected: %s\n", flags[i])
			return m.Exit(109)
		}
	}
	if pstateFile == "" {
		m.Errorf("--pstate-file is required\n")
		return m.Exit(106)
	}
	if !pstateOut && !bitmapOut {
		m.Errorf("No output form requested. Specify either --pstate-output, --bitmap-output or both.\n")
		return 1
	}

	pixels, err := m.FS.ReadFile(ids[0])
	if err != nil {
		m.Errorf("cannot read image: %v\n", err)
		return 1
	}
	raw, err := m.FS.ReadFile(pstateFile)
	if err != nil {
		m.Errorf("cannot read presentation state: %v\n", err)
		return 1
	}
	var ps PresentationState
	if err := json.Unmarshal(raw, &ps); err != nil {
		m.Errorf("invalid presentation state: %v\n", err)
		return 1
	}
	if ps.Rows*ps.Columns != len(pixels) {
		m.Errorf("presentation state is %dx%d but image has %d pixels\n", ps.Columns, ps.Rows, len(pixels))
		return 1
	}

	var text, bitmap []byte
	if pstateOut {
		text = fmt.Appendf(nil, "frame: %d\ncolumns: %d\nrows: %d\nwindow center: %g\nwindow width: %g\n",
			frame, ps.Columns, ps.Rows, ps.WindowCenter, ps.WindowWidth)
		if ps.Description != "" {
			text = fmt.Appendf(text, "description: %s\n", ps.Description)
		}
	}
	if bitmapOut {
		bitmap = window(pixels, ps.WindowCenter, ps.WindowWidth)
		if pgm {
			bitmap = append(fmt.Appendf(nil, "P5\n%d %d\n255\n", ps.Columns, ps.Rows), bitmap...)
		}
	}

	if err := m.SetOutputText(0, text); err != nil {
		m.Errorf("%v\n", err)
		return 1
	}
	if err := m.SetOutputText(1, bitmap); err != nil {
		m.Errorf("%v\n", err)
		return 1
	}
	return 0
}

// window applies a linear VOI window to 8-bit pixels.
func window(pixels []byte, center, width float64) []byte {
	out := make([]byte, len(pixels))
	if width < 2 {
		width = 2
	}
	lo := center - 0.5 - (width-1)/2
	hi := center - 0.5 + (width-1)/2
	for i, p := range pixels {
		v := float64(p)
		switch {
		case v <= lo:
			out[i] = 0
		case v > hi:
			out[i] = 255
		default:
			out[i] = byte(((v-(center-0.5))/(width-1) + 0.5) * 255)
		}
	}
	return out
}
