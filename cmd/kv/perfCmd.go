package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/relock/sentinel/cmd/util"
	"github.com/relock/sentinel/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the cluster",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfResult is the outcome of one benchmark: the throughput measured by
// testing.Benchmark and the latency distribution of the single calls
type perfResult struct {
	bench       testing.BenchmarkResult
	latency     gometrics.Timer
	unavailable int64
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for the cluster")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := dispatcher.Config()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	results := make(map[string]perfResult)
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)

	benchmarks := []struct {
		name    string
		prepare bool
		op      func(ctx context.Context, key string, counter int) common.Response
	}{
		{name: "set", op: func(ctx context.Context, key string, _ int) common.Response {
			return dispatcher.Set(ctx, key, "test")
		}},
		{name: "set-large", op: func(ctx context.Context, key string, _ int) common.Response {
			return dispatcher.Set(ctx, key, largeValue)
		}},
		{name: "get", prepare: true, op: func(ctx context.Context, key string, _ int) common.Response {
			return dispatcher.Get(ctx, key)
		}},
		{name: "has", prepare: true, op: func(ctx context.Context, key string, _ int) common.Response {
			return dispatcher.Call(ctx, "exists", map[string]any{"key": key})
		}},
		{name: "delete", prepare: true, op: func(ctx context.Context, key string, _ int) common.Response {
			return dispatcher.Delete(ctx, key)
		}},
		{name: "ping", op: func(ctx context.Context, _ string, _ int) common.Response {
			return dispatcher.Call(ctx, common.RouteMembers, nil)
		}},
		{name: "mixed", prepare: true, op: func(ctx context.Context, key string, counter int) common.Response {
			switch counter % 3 {
			case 0:
				return dispatcher.Set(ctx, key, "test")
			case 1:
				return dispatcher.Get(ctx, key)
			default:
				return dispatcher.Call(ctx, "exists", map[string]any{"key": key})
			}
		}},
	}

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			printResult(bm.name, perfResult{})
			continue
		}
		result := runBenchmark(ctx, bm.name, bm.prepare, bm.op)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, &config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark runs op in parallel and records the latency of every call
func runBenchmark(
	ctx context.Context,
	name string,
	prepare bool,
	op func(ctx context.Context, key string, counter int) common.Response,
) perfResult {
	timer := gometrics.NewTimer()
	unavailable := gometrics.NewCounter()

	bench := testing.Benchmark(func(b *testing.B) {
		getKey, iter := getKeys(name)

		if prepare {
			iter(func(k string) {
				if resp := dispatcher.Set(ctx, k, "test"); !resp.Available() {
					log.Printf("(%s) - error setting key: %v\n", name, resp.Err)
				}
			})
		}

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if resp := dispatcher.Delete(ctx, k); !resp.Available() {
					log.Printf("(%s) - error deleting key: %v\n", name, resp.Err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				resp := op(ctx, getKey(counter), counter)
				timer.UpdateSince(start)
				if !resp.Available() {
					unavailable.Inc(1)
				}
				counter++
			}
		})
	})

	return perfResult{bench: bench, latency: timer, unavailable: unavailable.Count()}
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.latency == nil || result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	snapshot := result.latency.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s max=%s\tunavailable=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(snapshot.Max()),
		result.unavailable)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Unavailable",
		"Endpoints", "TimeoutSec", "RetryCount", "PoolSize", "Ping",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)
		ps := result.latency.Snapshot().Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(result.unavailable, 10),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.PoolSize),
			strconv.FormatBool(config.Ping),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
