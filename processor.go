package exrpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
)

// Invocation describes a single processor run.
type Invocation struct {
	Path   string
	Width  int
	Height int
	Params Params
	// Extended appends saturation, slope, smoothness and exposure to the arguments.
	Extended bool
}

// Args returns <path> <width> <height> [<saturation> <slope> <smoothness> <exposure>].
func (inv Invocation) Args() []string {
	args := []string{inv.Path, strconv.Itoa(inv.Width), strconv.Itoa(inv.Height)}

	if inv.Extended {
		args = append(args,
			formatDecimal(inv.Params.Saturation),
			formatDecimal(inv.Params.Slope),
			formatDecimal(inv.Params.Smoothness),
			formatDecimal(inv.Params.Exposure),
		)
	}

	return args
}

// formatDecimal renders the shortest representation that keeps a fractional part, 0 is "0.0".
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}

// Processor runs the external image formation program.
type Processor struct {
	// Program and its leading arguments, invocation arguments are appended.
	Command []string
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ParseProcessor splits a command line into program and arguments without involving a shell.
func ParseProcessor(cmdline string) (*Processor, error) {
	argv, err := shellwords.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parse processor command %q: %w", cmdline, err)
	}

	if len(argv) == 0 {
		return nil, errors.New("empty processor command")
	}

	if argv[0], err = homedir.Expand(argv[0]); err != nil {
		return nil, err
	}

	return &Processor{Command: argv}, nil
}

// Cmd prepares the command for an invocation.
func (p *Processor) Cmd(ctx context.Context, inv Invocation) (*exec.Cmd, error) {
	if p == nil || len(p.Command) == 0 {
		return nil, fmt.Errorf("%w: processor command is not configured", ErrIO)
	}

	args := append(append([]string{}, p.Command[1:]...), inv.Args()...)

	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Dir = p.Dir
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr

	return cmd, nil
}

// Run executes the processor and waits for it to finish.
func (p *Processor) Run(ctx context.Context, inv Invocation) error {
	cmd, err := p.Cmd(ctx, inv)
	if err != nil {
		return err
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: run %s: %w", ErrIO, p.Command[0], err)
	}

	return nil
}
