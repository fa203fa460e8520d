package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// stdio 行缓冲上限,超长行视为协议错误
const maxLineBytes = 4 << 20

// ServeStdio 以换行分隔的 JSON-RPC 形式在 r/w 上服务,
// 直到输入流结束或 ctx 取消。每行一条请求,响应同样按行写出。
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("MCP server ready, listening on stdio",
		zap.String("protocol_version", ProtocolVersion),
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Message
		var resp Message
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.logger.Warn("invalid JSON-RPC request", zap.Error(err))
			resp = NewErrorResponse(nil, ErrorCodeParseError, "Parse error",
				map[string]any{"details": err.Error()})
		} else {
			resp = s.HandleRequest(ctx, req)
		}

		if err := writeMessage(out, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	s.logger.Info("MCP stdio stream closed")
	return nil
}

func writeMessage(out *bufio.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	if err := out.WriteByte('\n'); err != nil {
		return err
	}
	return out.Flush()
}
