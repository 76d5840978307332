package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Process is a long-running child started by a Starter.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Stop interrupts the process and kills it if it has not exited when ctx ends.
	Stop(ctx context.Context) error
}

// Starter launches long-running processes whose output is forwarded to a logger.
type Starter interface {
	Start(name string, args ...string) (Process, error)
}

type implStarter struct {
	logger *slog.Logger
}

// NewStarter creates a Starter that logs child output line by line at debug level.
func NewStarter(logger *slog.Logger) Starter {
	return &implStarter{logger: logger}
}

func (s *implStarter) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout of '%s': %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr of '%s': %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start '%s': %w", name, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	logger := s.logger.With("process", name, "pid", cmd.Process.Pid)

	var pipes sync.WaitGroup
	pipes.Add(2)
	go forward(&pipes, stdout, logger, &p.tail)
	go forward(&pipes, stderr, logger, &p.tail)
	go func() {
		pipes.Wait()
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func forward(wg *sync.WaitGroup, r io.Reader, logger *slog.Logger, tail *lastLines) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		logger.Debug(line)
	}
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	tail lastLines
}

func (p *process) Pid() int { return p.cmd.Process.Pid }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.err == nil {
		return nil
	}
	if out := p.tail.String(); out != "" {
		return fmt.Errorf("%w\noutput: %s", p.err, out)
	}
	return p.err
}

func (p *process) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	<-p.done
	return nil
}

// lastLines keeps the most recent output for error reports.
type lastLines struct {
	mu    sync.Mutex
	lines []string
}

const tailSize = 20

func (l *lastLines) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if len(l.lines) > tailSize {
		l.lines = l.lines[len(l.lines)-tailSize:]
	}
}

func (l *lastLines) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := ""
	for i, line := range l.lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}
