package uicontext

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type toolSession interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// MCP describes the UI by calling a dump tool on an MCP server subprocess.
type MCP struct {
	Name   string
	tool   string
	input  map[string]interface{}
	cmd    *exec.Cmd
	conn   toolSession
	logger *zap.Logger
}

// NewMCP starts the MCP server subprocess and checks that it provides the
// configured tool.
func NewMCP(ctx context.Context, cfg config.MCPServer, logger *zap.Logger) (*MCP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Command
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Stderr = os.Stderr
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "playtest", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	found := false
	params := &mcpsdk.ListToolsParams{}
	for !found {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			conn.Close()
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			if t.Name == cfg.Tool {
				found = true
				break
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	if !found {
		conn.Close()
		cmd.Process.Kill()
		return nil, errors.New("MCP server '%s' has no tool '%s'", name, cfg.Tool)
	}

	m := newMCP(name, cfg.Tool, cfg.Input, conn, logger)
	m.cmd = cmd
	m.logger.Info("Initialized MCP context source", zap.String("server", name), zap.String("tool", cfg.Tool))
	return m, nil
}

func newMCP(name, tool string, input map[string]interface{}, conn toolSession, logger *zap.Logger) *MCP {
	if input == nil {
		input = map[string]interface{}{}
	}
	return &MCP{
		Name:   name,
		tool:   tool,
		input:  input,
		conn:   conn,
		logger: logger.Named("uicontext"),
	}
}

// Describe calls the dump tool and joins its text output.
func (m *MCP) Describe(ctx context.Context) (string, error) {
	result, err := m.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      m.tool,
		Arguments: m.input,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", m.tool)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' failed: %s", m.tool, sb.String())
	}
	return sb.String(), nil
}

// Close ends the session and terminates the server subprocess.
func (m *MCP) Close() error {
	if m.conn != nil {
		m.conn.Close()
	}
	if m.cmd != nil && m.cmd.Process != nil {
		m.logger.Info("Terminating MCP server", zap.String("server", m.Name))
		return m.cmd.Process.Kill()
	}
	return nil
}
