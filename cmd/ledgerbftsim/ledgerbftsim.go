package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/sim"
	"github.com/ledgerbft/go-ledgerbft/sim/latency"
)

func main() {
	iterations := flag.Int("iterations", 1, "number of simulation iterations")
	replicaCount := flag.Int("replicas", 4, "number of replicas")
	latencySeed := flag.Int64("latency-seed", time.Now().UnixMilli(), "random seed for network latency")
	latencyMean := flag.Float64("latency-mean", 0.050, "mean network latency in seconds")
	values := flag.Int("values", 10, "number of values to submit and commit")
	crashPrimary := flag.Bool("crash-primary", false, "crash the initial primary before any value is submitted")
	maxDuration := flag.Duration("max-duration", 10*time.Minute, "simulated time to allow before failing")
	scheme := flag.String("scheme", signing.SchemeFake, "signing scheme")
	traceLevel := flag.Int("trace", sim.TraceNone, "trace verbosity level")
	viewChangeTimeout := flag.Duration("view-change-timeout", 10*time.Second, "view change timeout")
	flag.Parse()

	ctx := context.Background()
	var failed bool
	for i := 0; i < *iterations; i++ {
		// Increment seed for successive iterations.
		seed := *latencySeed + int64(i)
		fmt.Printf("Iteration %d: seed=%d, mean=%f\n", i, seed, *latencyMean)
		if err := runOnce(ctx, seed, *replicaCount, *latencyMean, *values, *crashPrimary, *maxDuration,
			*scheme, *traceLevel, *viewChangeTimeout); err != nil {
			fmt.Printf("Iteration %d failed: %s\n", i, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, seed int64, replicas int, mean float64, values int, crashPrimary bool,
	maxDuration time.Duration, scheme string, traceLevel int, viewChangeTimeout time.Duration) error {
	lm, err := latency.NewLogNormal(seed, time.Duration(mean*float64(time.Second)))
	if err != nil {
		return err
	}
	backend, err := signing.New(scheme)
	if err != nil {
		return err
	}
	sm, err := sim.NewSimulation(ctx,
		sim.WithReplicaCount(replicas),
		sim.WithLatencyModel(lm),
		sim.WithSigningBackend(backend),
		sim.WithTraceLevel(traceLevel),
		sim.WithPbftOptions(pbft.WithViewChangeTimeout(viewChangeTimeout)),
	)
	if err != nil {
		return err
	}
	if err := sm.Start(ctx); err != nil {
		return err
	}
	if crashPrimary {
		sm.Crash(0)
	}
	for v := 0; v < values; v++ {
		if err := sm.Submit([]byte(fmt.Sprintf("value-%d", v))); err != nil {
			return err
		}
	}
	start := sm.Network().Time()
	err = sm.RunUntilHeight(ctx, uint64(values), maxDuration)
	if err == nil {
		err = sm.CheckAgreement(ctx, uint64(values))
	}
	if err != nil {
		fmt.Println(sm.Describe())
		return err
	}
	fmt.Printf("Committed %d values in %s simulated, %d messages delivered, %d dropped\n",
		values, sm.Network().Time().Sub(start), sm.Network().Delivered(), sm.Network().Dropped())
	return nil
}
