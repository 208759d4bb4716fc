package metrics_test

import (
	"context"
	"expvar"
	"testing"

	"github.com/robinjongeneel23/blockchain/business/sys/metrics"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// counter reads the current value of a registered expvar counter.
func counter(t *testing.T, name string) int64 {
	t.Helper()

	v, ok := expvar.Get(name).(*expvar.Int)
	if !ok {
		t.Fatalf("\t%s\tShould have the %q counter registered.", failed, name)
	}

	return v.Value()
}

func Test_Counters(t *testing.T) {
	t.Log("Given the need to track request, error and panic counters.")
	{
		ctx := metrics.Set(context.Background())

		requests := counter(t, "requests")
		errors := counter(t, "errors")
		panics := counter(t, "panics")

		metrics.AddRequests(ctx)
		metrics.AddErrors(ctx)
		metrics.AddPanics(ctx)

		if got := counter(t, "requests"); got != requests+1 {
			t.Errorf("\t%s\tShould increment the requests counter: got %d, exp %d", failed, got, requests+1)
		} else {
			t.Logf("\t%s\tShould increment the requests counter.", success)
		}

		if got := counter(t, "errors"); got != errors+1 {
			t.Errorf("\t%s\tShould increment the errors counter: got %d, exp %d", failed, got, errors+1)
		} else {
			t.Logf("\t%s\tShould increment the errors counter.", success)
		}

		if got := counter(t, "panics"); got != panics+1 {
			t.Errorf("\t%s\tShould increment the panics counter: got %d, exp %d", failed, got, panics+1)
		} else {
			t.Logf("\t%s\tShould increment the panics counter.", success)
		}

		// The goroutine gauge only refreshes every 100 requests.
		for counter(t, "requests")%100 != 0 {
			metrics.AddRequests(ctx)
		}
		metrics.AddGoroutines(ctx)
		if got := counter(t, "goroutines"); got <= 0 {
			t.Errorf("\t%s\tShould report a positive goroutine count: got %d", failed, got)
		} else {
			t.Logf("\t%s\tShould report a positive goroutine count.", success)
		}
	}

	t.Log("Given a context without the metrics value.")
	{
		ctx := context.Background()

		requests := counter(t, "requests")
		metrics.AddRequests(ctx)

		if got := counter(t, "requests"); got != requests {
			t.Errorf("\t%s\tShould leave the requests counter untouched: got %d, exp %d", failed, got, requests)
		} else {
			t.Logf("\t%s\tShould leave the requests counter untouched.", success)
		}
	}
}
