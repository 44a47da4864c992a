package solverexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds every solver invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client drives the external solver binary. It implements solver.Toolkit.
type Client struct {
	binary  string
	args    []string
	timeout time.Duration
	exec    Executor

	mu      sync.Mutex
	sources map[string]map[int]string
}

var _ solver.Toolkit = (*Client)(nil)

// New constructs a solver client.
func New(binary string, args []string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("solver command required")
	}
	client := &Client{
		binary:  binary,
		args:    append([]string(nil), args...),
		exec:    commandExecutor{},
		sources: make(map[string]map[int]string),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FringeFit runs a fringe search and persists the returned SN table at
// req.OutputVersion.
func (c *Client) FringeFit(ctx context.Context, sess *tables.Session, req solver.Request) (tables.Table, error) {
	if req.OutputVersion <= 0 {
		return tables.Table{}, services.Wrap(services.ErrValidation, "solver", "fringe", "output version must be positive", nil)
	}
	if len(req.AntennaRestriction) > 0 && !hasBaseline(req.AntennaRestriction, req.Reference) {
		return tables.Table{}, services.Wrap(services.ErrSolverInvocation, "solver", "fringe",
			"antenna subset has no baseline to the reference", nil)
	}
	resp, err := c.call(ctx, sess, envelope{Action: ActionFringe, Fringe: &req})
	if err != nil {
		return tables.Table{}, err
	}
	if len(resp.Rows) == 0 {
		return tables.Table{}, services.Wrap(services.ErrSolverInvocation, "solver", "fringe", "solver returned no solutions", nil)
	}
	table := tables.Table{Kind: tables.KindSN, Version: req.OutputVersion, Rows: make([]tables.Row, len(resp.Rows))}
	for i, row := range resp.Rows {
		table.Rows[i] = row.row()
	}
	if err := sess.Put(ctx, table); err != nil {
		return tables.Table{}, fmt.Errorf("store SN %d: %w", table.Version, err)
	}
	sess.Log().Debug("fringe fit stored",
		logging.Int("sn_version", table.Version),
		logging.Int("rows", len(table.Rows)),
		logging.Bool("stop_at_fft", req.StopAtFFT),
		logging.Bool("average_ifs", req.AverageIFs),
	)
	return table, nil
}

// FlagAntennas flags ids in the dataset with reason.
func (c *Client) FlagAntennas(ctx context.Context, sess *tables.Session, ids []vlbi.AntennaID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.call(ctx, sess, envelope{Action: ActionFlag, Flag: &flagRequest{Antennas: ids, Reason: reason}})
	return err
}

// SourceName resolves a source id. The dataset's source list is fetched once
// and cached; a lookup failure is logged and reported as unknown.
func (c *Client) SourceName(ctx context.Context, sess *tables.Session, id int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names, ok := c.sources[sess.Dataset]
	if !ok {
		resp, err := c.call(ctx, sess, envelope{Action: ActionSources})
		if err != nil {
			logging.WarnWithContext(sess.Log(), "source list unavailable", "source_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "scans are labelled by source id"),
			)
			return "", false
		}
		names = make(map[int]string, len(resp.Sources))
		for key, name := range resp.Sources {
			n, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			names[n] = name
		}
		c.sources[sess.Dataset] = names
	}
	name, ok := names[id]
	return name, ok
}

// Antennas lists the dataset's antennas.
func (c *Client) Antennas(ctx context.Context, sess *tables.Session) ([]vlbi.Antenna, error) {
	resp, err := c.call(ctx, sess, envelope{Action: ActionAntennas})
	if err != nil {
		return nil, err
	}
	out := make([]vlbi.Antenna, len(resp.Antennas))
	for i, a := range resp.Antennas {
		out[i] = vlbi.Antenna{ID: a.ID, Name: a.Name, Position: a.Position}
	}
	return out, nil
}

// Export writes target calibrated with clVersion out of the dataset.
func (c *Client) Export(ctx context.Context, sess *tables.Session, target string, clVersion int) error {
	_, err := c.call(ctx, sess, envelope{Action: ActionExport, Export: &exportRequest{Target: target, CLVersion: clVersion}})
	return err
}

func (c *Client) call(ctx context.Context, sess *tables.Session, env envelope) (response, error) {
	env.Dataset = sess.Dataset
	env.RunID = sess.RunID
	payload, err := json.Marshal(env)
	if err != nil {
		return response{}, fmt.Errorf("encode %s request: %w", env.Action, err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.args...), string(env.Action))
	out, runErr := c.exec.Run(callCtx, c.binary, args, payload)
	if runErr != nil {
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		return response{}, services.Wrap(services.ErrSolverInvocation, "solver", string(env.Action), "", runErr)
	}
	resp, err := decodeResponse(out)
	if err != nil {
		return response{}, services.Wrap(services.ErrSolverInvocation, "solver", string(env.Action), "malformed response", err)
	}
	if resp.Error != "" {
		return response{}, services.Wrap(services.ErrSolverInvocation, "solver", string(env.Action), resp.Error, nil)
	}
	return resp, nil
}

func hasBaseline(ids []vlbi.AntennaID, ref vlbi.AntennaID) bool {
	for _, id := range ids {
		if id != ref {
			return true
		}
	}
	return false
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if tail := lastLine(stderr.String()); tail != "" {
			return nil, fmt.Errorf("%w: %s", err, tail)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
