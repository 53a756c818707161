package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errQueryFailed = errors.New("query failed")

type fakeRunner struct {
	out string
	err error
	n   int
}

func (f *fakeRunner) Run(string, ...string) error                      { return nil }
func (f *fakeRunner) Output(string, ...string) (string, error)         { return f.out, f.err }
func (f *fakeRunner) RunContext(context.Context, string, ...string) error { return nil }
func (f *fakeRunner) OutputContext(context.Context, string, ...string) (string, error) {
	f.n++
	return f.out, f.err
}

func TestModemClient_RateLimited(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{out: "rsrp=-95.0 sinr=12.5 carrier=Verizon cell_id=4A2B"}
	c := NewModemClient(r, "mmcli-query", "modem0", time.Hour)

	sig1 := c.Query(context.Background())
	if sig1.SignalPowerDBM != -95.0 || sig1.Carrier != "Verizon" {
		t.Fatalf("unexpected signal: %+v", sig1)
	}

	r.out = "rsrp=-200.0"
	sig2 := c.Query(context.Background())
	if sig2.SignalPowerDBM != -95.0 {
		t.Fatalf("expected cached value, got %+v", sig2)
	}
	if r.n != 1 {
		t.Fatalf("expected exactly one query, got %d", r.n)
	}
}

func TestModemClient_KeepsPriorValueOnFailure(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{out: "rsrp=-95.0"}
	c := NewModemClient(r, "mmcli-query", "modem0", 0)

	first := c.Query(context.Background())
	if first.SignalPowerDBM != -95.0 {
		t.Fatalf("unexpected first query: %+v", first)
	}

	r.err = errQueryFailed
	c.lastAt = time.Time{} // force refresh attempt
	second := c.Query(context.Background())
	if second.SignalPowerDBM != -95.0 {
		t.Fatalf("expected prior value retained on failure, got %+v", second)
	}
}

func TestParseModemOutput_RejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := parseModemOutput(""); err == nil {
		t.Fatalf("expected error for empty output")
	}
}
