// Package bridge connects to long-lived helper processes over
// line-delimited JSON-RPC 2.0 on stdio and merges their advertised
// tools into the tool registry.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/tools"
	"github.com/bluehawksai/bluehawks-cli/internal/version"
)

// RequestTimeout bounds a single JSON-RPC round-trip.
const RequestTimeout = 30 * time.Second

// ServerSpec describes a helper process to spawn.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Conn is one live helper-process connection. Requests carry
// monotonically increasing ids; responses are matched by id against the
// pending map.
type Conn struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan rpcResponse

	timeout time.Duration
	closed  chan struct{}
}

// Connect spawns the helper with inherited plus augmented environment,
// performs the initialize handshake, and starts the response reader.
func Connect(ctx context.Context, spec ServerSpec, logger *zap.Logger) (*Conn, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge %s: stdin pipe: %w", spec.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge %s: stdout pipe: %w", spec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge %s: start: %w", spec.Name, err)
	}

	c := &Conn{
		name:    spec.Name,
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger,
		pending: make(map[int64]chan rpcResponse),
		timeout: RequestTimeout,
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// newPipeConn wires a connection over arbitrary pipes, used by tests to
// drive a fake peer without spawning a process.
func newPipeConn(name string, in io.WriteCloser, out io.Reader, logger *zap.Logger) *Conn {
	c := &Conn{
		name:    name,
		stdin:   in,
		logger:  logger,
		pending: make(map[int64]chan rpcResponse),
		timeout: RequestTimeout,
		closed:  make(chan struct{}),
	}
	go c.readLoop(out)
	return c
}

// Name returns the helper's configured name.
func (c *Conn) Name() string { return c.name }

func (c *Conn) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			if c.logger != nil {
				c.logger.Debug("bridge: unparsable line", zap.String("server", c.name))
			}
			continue
		}
		if resp.ID == nil {
			continue // notification from the server; nothing awaits it
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Conn) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(payload, '\n'))
	return err
}

// call issues a request and waits for the matching response. A timeout
// removes the pending entry and fails the caller; the connection stays
// usable.
func (c *Conn) call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := c.send(req); err != nil {
		c.dropPending(id)
		return fmt.Errorf("bridge %s: send %s: %w", c.name, method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("bridge %s: %s: %s (code %d)", c.name, method, resp.Error.Message, resp.Error.Code)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("bridge %s: decode %s result: %w", c.name, method, err)
			}
		}
		return nil
	case <-timer.C:
		c.dropPending(id)
		return fmt.Errorf("bridge %s: %s timed out after %s", c.name, method, c.timeout)
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("bridge %s: connection closed", c.name)
	}
}

func (c *Conn) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Conn) notify(method string) error {
	return c.send(rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Conn) initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "bluehawks", Version: version.Version},
	}
	if err := c.call(ctx, "initialize", params, nil); err != nil {
		return err
	}
	return c.notify("notifications/initialized")
}

// ListTools requests the helper's advertised tools.
func (c *Conn) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result toolsListResult
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a helper tool and returns the response as text,
// JSON-stringified when structured.
func (c *Conn) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	var result json.RawMessage
	err := c.call(ctx, "tools/call", toolsCallParams{Name: name, Arguments: arguments}, &result)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(result, &text); err == nil {
		return text, nil
	}
	return string(result), nil
}

// ListResources requests the helper's advertised resources.
func (c *Conn) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	var result resourcesListResult
	if err := c.call(ctx, "resources/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ReadResource fetches one resource body.
func (c *Conn) ReadResource(ctx context.Context, uri string) (string, error) {
	var result json.RawMessage
	if err := c.call(ctx, "resources/read", resourcesReadParams{URI: uri}, &result); err != nil {
		return "", err
	}
	return string(result), nil
}

// Close terminates the helper (SIGTERM) and releases pipes.
func (c *Conn) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.stdin.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(syscall.SIGTERM)
		_ = c.cmd.Wait()
	}
}

// RegisterTools wraps every advertised tool into the registry under
// mcp_<server>_<tool>. Wrappers are never auto-safe.
func (c *Conn) RegisterTools(ctx context.Context, reg *tools.Registry) (int, error) {
	infos, err := c.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		info := info
		schema := toSchema(info.InputSchema)
		reg.Register(tools.Descriptor{
			Name:        fmt.Sprintf("mcp_%s_%s", c.name, info.Name),
			Description: fmt.Sprintf("[MCP:%s] %s", c.name, info.Description),
			Parameters:  schema,
			AutoSafe:    false,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return c.CallTool(ctx, info.Name, args)
			},
		})
	}
	return len(infos), nil
}

// toSchema converts a raw JSON schema object to the registry shape.
func toSchema(raw map[string]any) tools.Schema {
	schema := tools.Schema{Properties: map[string]tools.Property{}}
	props, _ := raw["properties"].(map[string]any)
	for name, v := range props {
		entry, _ := v.(map[string]any)
		prop := tools.Property{}
		if t, ok := entry["type"].(string); ok {
			prop.Type = t
		}
		if d, ok := entry["description"].(string); ok {
			prop.Description = d
		}
		if enum, ok := entry["enum"].([]any); ok {
			for _, e := range enum {
				if s, ok := e.(string); ok {
					prop.Enum = append(prop.Enum, s)
				}
			}
		}
		schema.Properties[name] = prop
	}
	if required, ok := raw["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// Manager owns the set of helper connections.
type Manager struct {
	mu     sync.Mutex
	conns  []*Conn
	logger *zap.Logger
}

// NewManager creates an empty bridge manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// ConnectAll spawns every configured helper and registers its tools.
// A helper that fails to connect is logged and skipped; the rest
// proceed.
func (m *Manager) ConnectAll(ctx context.Context, specs []ServerSpec, reg *tools.Registry) {
	for _, spec := range specs {
		conn, err := Connect(ctx, spec, m.logger)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("bridge connect failed", zap.String("server", spec.Name), zap.Error(err))
			}
			continue
		}
		count, err := conn.RegisterTools(ctx, reg)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("bridge tool registration failed", zap.String("server", spec.Name), zap.Error(err))
			}
			conn.Close()
			continue
		}
		if m.logger != nil {
			m.logger.Info("bridge connected", zap.String("server", spec.Name), zap.Int("tools", count))
		}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
	}
}

// CloseAll disconnects every helper.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
