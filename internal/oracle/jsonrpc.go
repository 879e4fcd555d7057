package oracle

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// jsonRpcMessage represents a JSON-RPC 2.0 message on the language
// server wire.
type jsonRpcMessage struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      *int        `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error
type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// sendRequest sends a JSON-RPC request and waits for the response or
// the deadline.
func (p *serverProcess) sendRequest(method string, params interface{}, timeout time.Duration) (interface{}, error) {
	p.requestsMu.Lock()
	id := p.nextMessageID
	p.nextMessageID++
	respChan := make(chan *jsonRpcMessage, 1)
	p.pendingRequests[id] = respChan
	p.requestsMu.Unlock()

	msg := jsonRpcMessage{
		Jsonrpc: "2.0",
		Id:      &id,
		Method:  method,
		Params:  params,
	}

	if err := p.writeMessage(&msg); err != nil {
		p.requestsMu.Lock()
		delete(p.pendingRequests, id)
		p.requestsMu.Unlock()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("server shut down mid-request")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("server error [%d]: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-time.After(timeout):
		p.requestsMu.Lock()
		delete(p.pendingRequests, id)
		p.requestsMu.Unlock()
		return nil, fmt.Errorf("request timeout after %s", timeout)
	case <-p.done:
		return nil, fmt.Errorf("server shutting down")
	}
}

// sendNotification sends a JSON-RPC notification (no response expected)
func (p *serverProcess) sendNotification(method string, params interface{}) error {
	return p.writeMessage(&jsonRpcMessage{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
	})
}

// writeMessage writes one Content-Length framed message to the server.
func (p *serverProcess) writeMessage(msg *jsonRpcMessage) error {
	if p.stdin == nil {
		return fmt.Errorf("stdin not available")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := p.stdin.Write([]byte(header)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// readLoop continuously reads messages from the server until EOF.
func (p *serverProcess) readLoop() {
	defer func() {
		p.setState(stateDead)

		p.requestsMu.Lock()
		for _, ch := range p.pendingRequests {
			close(ch)
		}
		p.pendingRequests = make(map[int]chan *jsonRpcMessage)
		p.requestsMu.Unlock()
	}()

	reader := bufio.NewReader(p.stdout)
	for {
		select {
		case <-p.done:
			return
		default:
			msg, err := p.readMessage(reader)
			if err != nil {
				if err == io.EOF {
					return
				}
				// Malformed frames happen; keep reading.
				continue
			}
			p.handleMessage(msg)
		}
	}
}

// readMessage reads a single framed message (headers + content).
func (p *serverProcess) readMessage(reader *bufio.Reader) (*jsonRpcMessage, error) {
	headers := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	contentLengthStr, ok := headers["Content-Length"]
	if !ok {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	contentLength, err := strconv.Atoi(contentLengthStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Content-Length: %w", err)
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, content); err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var msg jsonRpcMessage
	if err := json.Unmarshal(content, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// handleMessage routes a server message: responses to their waiting
// request, server-initiated traffic to handleServerMessage.
func (p *serverProcess) handleMessage(msg *jsonRpcMessage) {
	if msg.Id != nil && msg.Method == "" {
		p.requestsMu.Lock()
		respChan, ok := p.pendingRequests[*msg.Id]
		if ok {
			delete(p.pendingRequests, *msg.Id)
		}
		p.requestsMu.Unlock()

		if ok {
			select {
			case respChan <- msg:
			default:
			}
		}
		return
	}

	if msg.Method != "" {
		p.handleServerMessage(msg)
	}
}

// handleServerMessage handles server-initiated messages. Diagnostics,
// progress and log notifications carry nothing the migration needs.
func (p *serverProcess) handleServerMessage(msg *jsonRpcMessage) {
	if msg.Id != nil {
		// Server request; answer with an empty result so it does not stall.
		_ = p.writeMessage(&jsonRpcMessage{
			Jsonrpc: "2.0",
			Id:      msg.Id,
			Result:  nil,
		})
	}
}

// stderrLoop drains stderr so the server cannot block on it.
func (p *serverProcess) stderrLoop() {
	if p.stderr == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		select {
		case <-p.done:
			return
		default:
			n, err := p.stderr.Read(buf)
			if err != nil {
				return
			}
			_ = buf[:n]
		}
	}
}
