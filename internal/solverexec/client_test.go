package solverexec_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/solverexec"
	"vlbical/internal/tables"
	"vlbical/internal/testsupport"
	"vlbical/internal/vlbi"
)

type stubExecutor struct {
	replies  map[string]string
	err      error
	calls    int
	args     [][]string
	payloads []map[string]any
}

func (s *stubExecutor) Run(_ context.Context, _ string, args []string, stdin []byte) ([]byte, error) {
	s.calls++
	s.args = append(s.args, append([]string(nil), args...))
	var payload map[string]any
	_ = json.Unmarshal(stdin, &payload)
	s.payloads = append(s.payloads, payload)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.replies[args[len(args)-1]]), nil
}

func newClient(t *testing.T, exec *stubExecutor) *solverexec.Client {
	t.Helper()
	client, err := solverexec.New("fringe-solver", []string{"--quiet"}, solverexec.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresCommand(t *testing.T) {
	if _, err := solverexec.New("  ", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestFringeFitStoresRows(t *testing.T) {
	exec := &stubExecutor{replies: map[string]string{
		"fringe": `{"rows":[{"antenna":1,"time":0.1,"time_interval":0.01,"source_id":2,"weights":[null],"reference":true},
                             {"antenna":2,"time":0.1,"time_interval":0.01,"source_id":2,"weights":[7.5,0]}]}`,
	}}
	store := testsupport.NewMemoryStore()
	sess := testsupport.NewSession(t, store)
	client := newClient(t, exec)

	table, err := client.FringeFit(context.Background(), sess, solver.Request{Reference: 1, Sources: []string{"CAL"}, OutputVersion: 3, StopAtFFT: true})
	if err != nil {
		t.Fatalf("FringeFit: %v", err)
	}
	if len(table.Rows) != 2 || !math.IsNaN(table.Rows[0].Weights[0]) || table.Rows[1].Weights[0] != 7.5 {
		t.Fatalf("unexpected table %+v", table)
	}
	stored, err := store.Table(context.Background(), "TEST", tables.KindSN, 3)
	if err != nil || len(stored.Rows) != 2 {
		t.Fatalf("table not persisted: %+v, %v", stored, err)
	}

	if got := exec.args[0]; len(got) != 2 || got[0] != "--quiet" || got[1] != "fringe" {
		t.Fatalf("unexpected args %v", got)
	}
	payload := exec.payloads[0]
	if payload["action"] != "fringe" || payload["dataset"] != "TEST" || payload["run_id"] != "run-test" {
		t.Fatalf("unexpected envelope %v", payload)
	}
	fringe, _ := payload["fringe"].(map[string]any)
	if fringe["stop_at_fft"] != true || fringe["output_version"] != float64(3) {
		t.Fatalf("unexpected fringe request %v", fringe)
	}
}

func TestFringeFitFailuresMapToSolverInvocation(t *testing.T) {
	cases := []struct {
		name string
		exec *stubExecutor
		req  solver.Request
	}{
		{"exit error", &stubExecutor{err: errors.New("exit status 1")}, solver.Request{Reference: 1, OutputVersion: 1}},
		{"error field", &stubExecutor{replies: map[string]string{"fringe": `{"error":"no data selected"}`}}, solver.Request{Reference: 1, OutputVersion: 1}},
		{"empty table", &stubExecutor{replies: map[string]string{"fringe": `{"rows":[]}`}}, solver.Request{Reference: 1, OutputVersion: 1}},
		{"malformed", &stubExecutor{replies: map[string]string{"fringe": `not json`}}, solver.Request{Reference: 1, OutputVersion: 1}},
		{"reference only subset", &stubExecutor{}, solver.Request{Reference: 1, OutputVersion: 1, AntennaRestriction: []vlbi.AntennaID{1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
			_, err := newClient(t, tc.exec).FringeFit(context.Background(), sess, tc.req)
			if !errors.Is(err, services.ErrSolverInvocation) {
				t.Fatalf("expected ErrSolverInvocation, got %v", err)
			}
		})
	}
}

func TestSourceNamesAreCachedPerDataset(t *testing.T) {
	exec := &stubExecutor{replies: map[string]string{"sources": `{"sources":{"1":"0059+581","2":"J0102+5824"}}`}}
	client := newClient(t, exec)
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	if name, ok := client.SourceName(context.Background(), sess, 2); !ok || name != "J0102+5824" {
		t.Fatalf("SourceName(2) = %q, %v", name, ok)
	}
	if _, ok := client.SourceName(context.Background(), sess, 9); ok {
		t.Fatal("unknown source resolved")
	}
	if exec.calls != 1 {
		t.Fatalf("expected one sources call, got %d", exec.calls)
	}
}

func TestFlagExportAndAntennas(t *testing.T) {
	exec := &stubExecutor{replies: map[string]string{
		"antennas": `{"antennas":[{"id":1,"name":"EF","position":[1,2,3]}]}`,
		"flag":     `{}`,
		"export":   ``,
	}}
	client := newClient(t, exec)
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
	ctx := context.Background()

	ants, err := client.Antennas(ctx, sess)
	if err != nil || len(ants) != 1 || ants[0].Name != "EF" || ants[0].Position[2] != 3 {
		t.Fatalf("Antennas = %+v, %v", ants, err)
	}
	if err := client.FlagAntennas(ctx, sess, []vlbi.AntennaID{4, 5}, solver.FlagReasonUncoverable); err != nil {
		t.Fatalf("FlagAntennas: %v", err)
	}
	if err := client.FlagAntennas(ctx, sess, nil, solver.FlagReasonUncoverable); err != nil {
		t.Fatalf("FlagAntennas with no ids: %v", err)
	}
	if err := client.Export(ctx, sess, "J0102+5824", 7); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exec.calls != 3 {
		t.Fatalf("expected 3 solver calls, got %d", exec.calls)
	}
	flag, _ := exec.payloads[1]["flag"].(map[string]any)
	if flag["reason"] != "UNCOVERABLE" {
		t.Fatalf("unexpected flag payload %v", flag)
	}
	export, _ := exec.payloads[2]["export"].(map[string]any)
	if export["target"] != "J0102+5824" || export["cl_version"] != float64(7) {
		t.Fatalf("unexpected export payload %v", export)
	}
}

func TestCommandExecutorRunsBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedSolver(
		`cat >/dev/null
if [ "$1" = "antennas" ]; then
  echo '{"antennas":[{"id":3,"name":"WB","position":[0,0,0]}]}'
  exit 0
fi
echo "unsupported action $1" >&2
exit 2`))
	client, err := solverexec.New(cfg.Solver.Command, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	ants, err := client.Antennas(context.Background(), sess)
	if err != nil || len(ants) != 1 || ants[0].ID != 3 {
		t.Fatalf("Antennas = %+v, %v", ants, err)
	}
	err = client.Export(context.Background(), sess, "T", 1)
	if !errors.Is(err, services.ErrSolverInvocation) {
		t.Fatalf("expected ErrSolverInvocation, got %v", err)
	}
}
