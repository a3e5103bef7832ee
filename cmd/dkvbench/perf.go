package main

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkv-io/async-client/types"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Throughput benchmark: parallel put and get against a cluster",
		PreRunE: bindPerfFlags,
		RunE:    runPerf,
	}
	perfThreads  = 10
	perfKeys     = 100
	perfValueKB  = 1
)

func init() {
	perfCmd.Flags().Int("threads", 10, "Number of goroutines issuing requests in parallel")
	perfCmd.Flags().Int("keys", 100, "Number of distinct keys to cycle through")
	perfCmd.Flags().Int("value-size-kb", 1, "Size of each written value, in KB")
}

func bindPerfFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func runPerf(cmd *cobra.Command, _ []string) error {
	perfThreads = viper.GetInt("threads")
	perfKeys = viper.GetInt("keys")
	perfValueKB = viper.GetInt("value-size-kb")

	fmt.Println(cfg.String())
	fmt.Printf("  %-26s: %d\n  %-26s: %d\n  %-26s: %d KB\n\n", "Threads", perfThreads, "Keys", perfKeys, "Value Size", perfValueKB)

	cl := cfg.NewClient()
	defer cl.Close()

	value := types.BytesValue(make([]byte, perfValueKB*1024))

	putResult := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				key := benchKey(i)
				res := newSyncWrite()
				cl.Put(key, map[string]types.Value{"v": value}, cfg.Policy, res)
				if err := res.wait(); err != nil {
					b.Errorf("put: %v", err)
				}
				i++
			}
		})
	})
	fmt.Println("put:", putResult.String())

	getResult := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				key := benchKey(i)
				res := newSyncResult()
				cl.Get(key, nil, cfg.Policy, res)
				if _, err := res.wait(); err != nil {
					b.Errorf("get: %v", err)
				}
				i++
			}
		})
	})
	fmt.Println("get:", getResult.String())

	for i := 0; i < perfKeys; i++ {
		key := benchKey(i)
		res := newSyncWrite()
		cl.Delete(key, cfg.Policy, res)
		_ = res.wait()
	}

	return nil
}

func benchKey(i int) types.Key {
	n := i % perfKeys
	return types.NewKey("test", "bench", types.StringValue("dkvbench-"+strconv.Itoa(n)))
}
