package oracle

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// processState represents the lifecycle state of the language server
// process behind the LSP oracle.
type processState string

const (
	stateStarting     processState = "starting"
	stateInitializing processState = "initializing"
	stateReady        processState = "ready"
	stateDead         processState = "dead"
)

// serverProcess owns one running language server over stdio.
type serverProcess struct {
	workspaceRoot string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu    sync.RWMutex
	state processState

	lastResponse        time.Time
	consecutiveFailures int

	writeMu sync.Mutex

	nextMessageID   int
	pendingRequests map[int]chan *jsonRpcMessage
	requestsMu      sync.Mutex

	done chan struct{}
}

func newServerProcess(workspaceRoot string) *serverProcess {
	return &serverProcess{
		workspaceRoot:   workspaceRoot,
		state:           stateStarting,
		pendingRequests: make(map[int]chan *jsonRpcMessage),
		done:            make(chan struct{}),
	}
}

func (p *serverProcess) getState() processState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *serverProcess) setState(s processState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *serverProcess) isHealthy() bool {
	return p.getState() == stateReady
}

func (p *serverProcess) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastResponse = time.Now()
	p.consecutiveFailures = 0
}

func (p *serverProcess) recordFailure() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures++
	return p.consecutiveFailures
}

// start spawns the server command and wires its pipes.
func (p *serverProcess) start(command string, args []string) error {
	cmd := exec.Command(command, args...)
	cmd.Dir = p.workspaceRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	p.stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	p.stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start language server: %w", err)
	}
	p.cmd = cmd

	go p.readLoop()
	go p.stderrLoop()
	return nil
}

// shutdown gracefully stops the server process.
func (p *serverProcess) shutdown() {
	select {
	case <-p.done:
		return // already shut down
	default:
	}
	close(p.done)

	if p.stdin != nil {
		_ = p.sendNotification("shutdown", nil)
		_ = p.sendNotification("exit", nil)
		_ = p.stdin.Close()
	}
	if p.stdout != nil {
		_ = p.stdout.Close()
	}
	if p.stderr != nil {
		_ = p.stderr.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.setState(stateDead)
}
