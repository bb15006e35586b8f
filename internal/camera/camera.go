// Package camera acquires raw RGB frames from an external imaging utility.
package camera

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
)

// Source produces one raw frame of width*height*3 bytes, R,G,B, row-major.
type Source interface {
	Capture(ctx context.Context, width, height int) ([]byte, error)
}

// DefaultArgs ask raspiyuv for RGB output of the requested size on stdout.
var DefaultArgs = []string{"-rgb", "-w", "{width}", "-h", "{height}", "-o", "-"}

// CommandSource runs an imaging utility and reads its stdout to EOF. The
// placeholders {width} and {height} in Args are substituted per call.
type CommandSource struct {
	Command string
	Args    []string
	log     logger.Logger
}

func NewCommandSource(command string, args []string, log logger.Logger) *CommandSource {
	if len(args) == 0 {
		args = DefaultArgs
	}

	return &CommandSource{
		Command: command,
		Args:    args,
		log:     log.With("camera"),
	}
}

func (s *CommandSource) Capture(ctx context.Context, width, height int) ([]byte, error) {
	errFactory := errors.New()

	args := expandArgs(s.Args, width, height)
	cmd := exec.CommandContext(ctx, s.Command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.log.Debug().
		Str("command", s.Command).
		Strs("args", args).
		Msg("Starting capture")

	out, err := cmd.Output()
	if err != nil {
		return nil, errFactory.WithData(errors.ErrCaptureSource, struct {
			Command string
			Error   string
			Stderr  string
		}{
			Command: s.Command,
			Error:   err.Error(),
			Stderr:  strings.TrimSpace(stderr.String()),
		})
	}

	s.log.Debug().
		Int("bytes", len(out)).
		Msg("Capture complete")

	return out, nil
}

func expandArgs(template []string, width, height int) []string {
	r := strings.NewReplacer(
		"{width}", strconv.Itoa(width),
		"{height}", strconv.Itoa(height),
	)

	args := make([]string, len(template))
	for i, a := range template {
		args[i] = r.Replace(a)
	}

	return args
}
