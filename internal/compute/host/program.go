package host

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

var (
	entryPointRe   = regexp.MustCompile(`\b(?:__kernel|kernel)\s+void\s+([A-Za-z_]\w*)\s*\(`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
)

type program struct {
	ctx      *context
	source   string
	built    bool
	entries  map[string]bool
	logs     map[*device]string
	kernels  int
	released bool
}

// Build checks the source and records its entry points. The check is
// structural only: comments are stripped, brackets must balance and at least
// one __kernel function must be declared.
func (p *program) Build(devices []compute.Device, options string) error {
	if p.released {
		return compute.NewStatusError("clBuildProgram", compute.StatusInvalidProgram)
	}
	if p.kernels > 0 {
		return compute.NewStatusError("clBuildProgram", compute.StatusInvalidOperation)
	}
	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			return fmt.Errorf("option %q: %w", opt, compute.NewStatusError("clBuildProgram", compute.StatusInvalidBuildOptions))
		}
	}

	targets := p.ctx.devices
	if len(devices) > 0 {
		targets = targets[:0:0]
		for _, d := range devices {
			hd, ok := p.ctx.owns(d)
			if !ok {
				return compute.NewStatusError("clBuildProgram", compute.StatusInvalidDevice)
			}
			targets = append(targets, hd)
		}
	}

	stripped := stripComments(p.source)
	diag := checkBrackets(stripped)

	entries := map[string]bool{}
	for _, m := range entryPointRe.FindAllStringSubmatch(stripped, -1) {
		entries[m[1]] = true
	}
	if diag == "" && len(entries) == 0 {
		diag = "<source>:1:1: error: no __kernel entry point declared"
	}

	p.logs = make(map[*device]string, len(targets))
	for _, d := range targets {
		p.logs[d] = diag
	}

	if diag != "" {
		p.built = false
		p.entries = nil
		name := ""
		if len(targets) > 0 {
			name = targets[0].info.Name
		}
		return &compute.BuildError{
			Device: name,
			Log:    diag,
			Err:    compute.NewStatusError("clBuildProgram", compute.StatusBuildProgramFailure),
		}
	}

	p.built = true
	p.entries = entries
	return nil
}

func (p *program) BuildLog(d compute.Device) (string, error) {
	if p.released {
		return "", compute.NewStatusError("clGetProgramBuildInfo", compute.StatusInvalidProgram)
	}
	hd, ok := p.ctx.owns(d)
	if !ok {
		return "", compute.NewStatusError("clGetProgramBuildInfo", compute.StatusInvalidDevice)
	}
	return p.logs[hd], nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	if p.released {
		return nil, compute.NewStatusError("clCreateKernel", compute.StatusInvalidProgram)
	}
	if !p.built {
		return nil, compute.NewStatusError("clCreateKernel", compute.StatusInvalidProgramExec)
	}
	if !p.entries[name] {
		return nil, fmt.Errorf("kernel %q: %w", name, compute.NewStatusError("clCreateKernel", compute.StatusInvalidKernelName))
	}
	spec, ok := p.ctx.driver.kernels[name]
	if !ok {
		return nil, fmt.Errorf("kernel %q has no host emulation: %w", name, compute.NewStatusError("clCreateKernel", compute.StatusInvalidKernelName))
	}

	p.kernels++
	return &kernel{
		program: p,
		name:    name,
		spec:    spec,
		args:    make([]arg, len(spec.Params)),
	}, nil
}

func (p *program) Release() error {
	if p.released {
		return compute.ErrReleased
	}
	if p.kernels > 0 {
		return fmt.Errorf("clReleaseProgram: %d live kernel(s): %w", p.kernels, compute.ErrStillInUse)
	}
	p.released = true
	p.ctx.children--
	return nil
}

func stripComments(src string) string {
	keepLines := func(s string) string {
		return strings.Repeat("\n", strings.Count(s, "\n"))
	}
	src = blockCommentRe.ReplaceAllStringFunc(src, keepLines)
	return lineCommentRe.ReplaceAllString(src, "")
}

// checkBrackets returns a clang-style diagnostic for the first unbalanced
// bracket, or "" when all brackets match.
func checkBrackets(src string) string {
	type open struct {
		ch        byte
		line, col int
	}
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	var stack []open
	line, col := 1, 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		col++
		switch c {
		case '\n':
			line++
			col = 0
		case '(', '[', '{':
			stack = append(stack, open{ch: c, line: line, col: col})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return fmt.Sprintf("<source>:%d:%d: error: unexpected '%c'", line, col, c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Sprintf("<source>:%d:%d: error: unterminated '%c'", top.line, top.col, top.ch)
	}
	return ""
}
