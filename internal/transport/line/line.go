// Package line implements the whitespace-token text protocol spoken over a pipe.
package line

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/harvestbot/harvester/internal/parser"
	"github.com/harvestbot/harvester/internal/transport"
	"github.com/harvestbot/harvester/pkg/core"
)

// Transport writes one command per line and parses the driver's reply from r.
type Transport struct {
	mu     sync.Mutex
	w      *bufio.Writer
	tokens *parser.Tokens
	parser *parser.Parser
	closer io.Closer
	logger *slog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport reading replies from r and writing commands to w.
// If w is also an io.Closer it is closed by Close.
func New(r io.Reader, w io.Writer, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		w:      bufio.NewWriter(w),
		tokens: parser.NewTokens(r),
		parser: parser.NewParser(logger),
		logger: logger,
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// Name implements transport.Transport.
func (t *Transport) Name() string {
	return "line"
}

func (t *Transport) send(fields ...string) error {
	line := strings.Join(fields, " ")
	t.logger.Debug("Sending command", "command", line)
	if _, err := t.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", fields[0], err)
	}
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", fields[0], err)
	}
	return nil
}

// closedErr maps the end of the reply stream before a response to transport.ErrClosed.
func closedErr(cmd string, err error) error {
	if parser.IsClosed(err) {
		return fmt.Errorf("%s: %w", cmd, transport.ErrClosed)
	}
	return fmt.Errorf("parsing %s response: %w", cmd, err)
}

// Game implements transport.Transport.
func (t *Transport) Game(_ context.Context) (*core.Game, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.send("game"); err != nil {
		return nil, err
	}
	g, err := t.parser.ParseGame(t.tokens)
	if err != nil {
		return nil, closedErr("game", err)
	}
	return g, nil
}

// Move implements transport.Transport.
func (t *Transport) Move(_ context.Context, agent, x, y int) (core.MoveLog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.send("move", strconv.Itoa(agent), strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return core.MoveLog{}, err
	}
	log, err := t.parser.ParseMoveLog(t.tokens)
	if err != nil {
		return core.MoveLog{}, closedErr("move", err)
	}
	return log, nil
}

// WillMove implements transport.Transport.
func (t *Transport) WillMove(_ context.Context, agent, x, y, tick int) (core.MoveLog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.send("will_move", strconv.Itoa(agent), strconv.Itoa(x), strconv.Itoa(y), strconv.Itoa(tick)); err != nil {
		return core.MoveLog{}, err
	}
	log, err := t.parser.ParseMoveLog(t.tokens)
	if err != nil {
		return core.MoveLog{}, closedErr("will_move", err)
	}
	return log, nil
}

// Resources implements transport.Transport.
func (t *Transport) Resources(_ context.Context, ids []int) ([]core.ResourceWithAmount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := make([]string, 0, len(ids)+1)
	fields = append(fields, "resources")
	for _, id := range ids {
		fields = append(fields, strconv.Itoa(id))
	}
	if err := t.send(fields...); err != nil {
		return nil, err
	}
	rs, err := t.parser.ParseResources(t.tokens)
	if err != nil {
		return nil, closedErr("resources", err)
	}
	return rs, nil
}

// Close closes the command stream if it is closable.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
