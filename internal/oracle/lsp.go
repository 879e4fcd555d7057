package oracle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"depmig/internal/errors"
	"depmig/internal/logging"
	"depmig/internal/pysrc"
)

// Supervisor tuning.
const (
	// maxConsecutiveFailures before the server process is recycled
	maxConsecutiveFailures = 3

	// baseBackoff is the first restart delay; it doubles per restart
	baseBackoff = 1 * time.Second

	// maxBackoff caps the restart delay
	maxBackoff = 30 * time.Second

	// defaultQueryTimeout bounds one hover round trip
	defaultQueryTimeout = 15 * time.Second
)

// LSPConfig configures the language-server-backed oracle.
type LSPConfig struct {
	// Command and Args spawn the server, e.g. "pyright-langserver --stdio".
	Command string
	Args    []string

	// WorkspaceRoot is the directory the server analyzes.
	WorkspaceRoot string

	// QueryTimeout bounds a single query; zero means the default.
	QueryTimeout time.Duration
}

// LSP is a type oracle backed by a Python language server spoken to
// over stdio. Cancellation and timeouts are enforced here, at the
// process boundary; the resolver never blocks on anything else.
type LSP struct {
	config LSPConfig
	logger *logging.Logger

	mu            sync.Mutex
	proc          *serverProcess
	restartCount  int
	nextRestartAt time.Time
	versions      map[string]int
}

// NewLSP creates the oracle without starting the server; the first
// Open or Query starts it.
func NewLSP(config LSPConfig, logger *logging.Logger) *LSP {
	if logger == nil {
		logger = logging.Nop()
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = defaultQueryTimeout
	}
	return &LSP{
		config:   config,
		logger:   logger,
		versions: make(map[string]int),
	}
}

// ensureRunning starts or restarts the server process, honoring the
// restart backoff.
func (o *LSP) ensureRunning() (*serverProcess, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.proc != nil && o.proc.isHealthy() {
		return o.proc, nil
	}

	if o.proc != nil {
		o.proc.shutdown()
		o.proc = nil
	}

	if time.Now().Before(o.nextRestartAt) {
		return nil, errors.New(errors.OracleUnavailable,
			fmt.Sprintf("language server restarting, retry after %s", time.Until(o.nextRestartAt).Round(time.Second)), nil)
	}

	proc := newServerProcess(o.config.WorkspaceRoot)
	if err := proc.start(o.config.Command, o.config.Args); err != nil {
		o.scheduleRestart()
		return nil, errors.New(errors.OracleUnavailable, "failed to start language server", err)
	}

	if err := o.initialize(proc); err != nil {
		proc.shutdown()
		o.scheduleRestart()
		return nil, errors.New(errors.OracleUnavailable, "language server initialization failed", err)
	}

	o.proc = proc
	o.logger.Info("language server started", map[string]interface{}{
		"command":   o.config.Command,
		"workspace": o.config.WorkspaceRoot,
	})
	return proc, nil
}

func (o *LSP) scheduleRestart() {
	o.restartCount++
	backoff := maxBackoff
	if o.restartCount <= 6 {
		backoff = baseBackoff << uint(o.restartCount-1)
	}
	o.nextRestartAt = time.Now().Add(backoff)
}

// initialize performs the LSP handshake; only hover capability matters.
func (o *LSP) initialize(proc *serverProcess) error {
	proc.setState(stateInitializing)

	params := map[string]interface{}{
		"processId": nil,
		"rootUri":   fileURI(o.config.WorkspaceRoot),
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"hover": map[string]interface{}{
					"contentFormat": []string{"markdown", "plaintext"},
				},
				"synchronization": map[string]interface{}{},
			},
		},
	}

	if _, err := proc.sendRequest("initialize", params, o.config.QueryTimeout); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	if err := proc.sendNotification("initialized", map[string]interface{}{}); err != nil {
		return fmt.Errorf("initialized notification failed: %w", err)
	}

	proc.setState(stateReady)
	proc.recordSuccess()
	return nil
}

// Open implements Oracle: textDocument/didOpen.
func (o *LSP) Open(_ context.Context, file string, text []byte) error {
	proc, err := o.ensureRunning()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.versions[file] = 1
	o.mu.Unlock()

	return proc.sendNotification("textDocument/didOpen", map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":        fileURI(file),
			"languageId": "python",
			"version":    1,
			"text":       string(text),
		},
	})
}

// Update implements Oracle: full-text textDocument/didChange, which
// invalidates the server's cached analysis for dependents.
func (o *LSP) Update(_ context.Context, file string, text []byte) error {
	proc, err := o.ensureRunning()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.versions[file]++
	version := o.versions[file]
	o.mu.Unlock()

	return proc.sendNotification("textDocument/didChange", map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":     fileURI(file),
			"version": version,
		},
		"contentChanges": []map[string]interface{}{
			{"text": string(text)},
		},
	})
}

// Query implements Oracle via textDocument/hover.
func (o *LSP) Query(ctx context.Context, file string, line, col int) (string, bool, error) {
	proc, err := o.ensureRunning()
	if err != nil {
		return "", false, err
	}

	timeout := o.config.QueryTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	result, err := proc.sendRequest("textDocument/hover", map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": fileURI(file)},
		"position":     map[string]interface{}{"line": line, "character": col},
	}, timeout)
	if err != nil {
		if n := proc.recordFailure(); n >= maxConsecutiveFailures {
			o.logger.Warn("language server unresponsive, recycling", map[string]interface{}{
				"failures": n,
			})
			o.mu.Lock()
			proc.shutdown()
			o.proc = nil
			o.scheduleRestart()
			o.mu.Unlock()
		}
		return "", false, errors.New(errors.OracleTimeout, "hover query failed", err)
	}
	proc.recordSuccess()

	typeName, ok := parseHoverType(result)
	return typeName, ok, nil
}

// Close implements Oracle.
func (o *LSP) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.proc != nil {
		o.proc.shutdown()
		o.proc = nil
	}
	return nil
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// parseHoverType extracts a nominal type name from a hover response.
// Servers answer in markdown along the lines of
//
//	```python
//	(variable) w: widgets.Widget
//	```
//
// Anything the parse cannot pin to a single dotted name (unions,
// callables, Any/Unknown) is reported as not known; guessing is worse
// than skipping a migration.
func parseHoverType(result interface{}) (string, bool) {
	return typeFromMarkdown(hoverText(result))
}

// typeFromMarkdown scans markdown-ish declaration text for a
// "name: Type" line and extracts the type.
func typeFromMarkdown(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			continue
		}
		candidate := strings.TrimSpace(line[idx+2:])
		candidate = strings.TrimSuffix(candidate, "`")

		// Generic parameters do not change the nominal class.
		if b := strings.Index(candidate, "["); b >= 0 {
			candidate = candidate[:b]
		}

		if !isConcreteTypeName(candidate) {
			return "", false
		}
		return candidate, true
	}
	return "", false
}

func hoverText(result interface{}) string {
	m, ok := result.(map[string]interface{})
	if !ok {
		return ""
	}
	switch contents := m["contents"].(type) {
	case string:
		return contents
	case map[string]interface{}:
		if v, ok := contents["value"].(string); ok {
			return v
		}
	case []interface{}:
		for _, item := range contents {
			if s, ok := item.(string); ok {
				return s
			}
			if im, ok := item.(map[string]interface{}); ok {
				if v, ok := im["value"].(string); ok {
					return v
				}
			}
		}
	}
	return ""
}

// isConcreteTypeName accepts a single dotted class name and nothing
// else.
func isConcreteTypeName(s string) bool {
	if s == "" || strings.ContainsAny(s, " |()<>,") {
		return false
	}
	switch s {
	case "Any", "Unknown", "None", "object", "type":
		return false
	}
	return pysrc.IsDottedName(s)
}
