package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkv-io/async-client/command"
	"github.com/dkv-io/async-client/types"
)

// syncResult is a one-shot listener adapter: every async operation
// method (Get, Put, ...) takes a callback-style listener, but a CLI
// command wants to block for its single result, the way
// rpc/client/client_istore.go's synchronous IStore wraps a transport
// round trip into a plain return value.
type syncResult struct {
	done chan struct{}
	rec  *types.Record
	err  error
}

func newSyncResult() *syncResult {
	return &syncResult{done: make(chan struct{})}
}

func (s *syncResult) OnSuccess(rec *types.Record) {
	s.rec = rec
	close(s.done)
}

func (s *syncResult) OnFailure(err error) {
	s.err = err
	close(s.done)
}

func (s *syncResult) wait() (*types.Record, error) {
	<-s.done
	return s.rec, s.err
}

type syncWrite struct {
	done chan struct{}
	err  error
}

func newSyncWrite() *syncWrite { return &syncWrite{done: make(chan struct{})} }

func (s *syncWrite) OnSuccess()      { close(s.done) }
func (s *syncWrite) OnFailure(err error) {
	s.err = err
	close(s.done)
}
func (s *syncWrite) wait() error {
	<-s.done
	return s.err
}

type syncExists struct {
	done   chan struct{}
	exists bool
	err    error
}

func newSyncExists() *syncExists { return &syncExists{done: make(chan struct{})} }

func (s *syncExists) OnSuccess(exists bool) {
	s.exists = exists
	close(s.done)
}
func (s *syncExists) OnFailure(err error) {
	s.err = err
	close(s.done)
}
func (s *syncExists) wait() (bool, error) {
	<-s.done
	return s.exists, s.err
}

var (
	putCmd = &cobra.Command{
		Use:   "put [namespace] [set] [key] [bin] [value]",
		Short: "Writes a single string bin to a record",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			key := types.NewKey(args[0], args[1], types.StringValue(args[2]))
			bins := map[string]types.Value{args[3]: types.StringValue(args[4])}

			res := newSyncWrite()
			cl.Put(key, bins, cfg.Policy, res)
			if err := res.wait(); err != nil {
				return err
			}
			fmt.Println("put ok")
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [namespace] [set] [key]",
		Short: "Reads every bin of a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			key := types.NewKey(args[0], args[1], types.StringValue(args[2]))
			res := newSyncResult()
			cl.Get(key, nil, cfg.Policy, res)
			rec, err := res.wait()
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("not found")
				return nil
			}
			fmt.Printf("generation=%d expiration=%d bins=%d\n", rec.Generation, rec.Expiration, len(rec.Bins))
			for name, v := range rec.Bins {
				fmt.Printf("  %s = %s\n", name, v.String())
			}
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [namespace] [set] [key]",
		Short: "Deletes a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			key := types.NewKey(args[0], args[1], types.StringValue(args[2]))
			res := newSyncWrite()
			cl.Delete(key, cfg.Policy, res)
			if err := res.wait(); err != nil {
				return err
			}
			fmt.Println("delete ok")
			return nil
		},
	}

	existsCmd = &cobra.Command{
		Use:   "exists [namespace] [set] [key]",
		Short: "Checks whether a record exists",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			key := types.NewKey(args[0], args[1], types.StringValue(args[2]))
			res := newSyncExists()
			cl.Exists(key, cfg.Policy, res)
			exists, err := res.wait()
			if err != nil {
				return err
			}
			fmt.Printf("exists=%t\n", exists)
			return nil
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch [namespace] [set] [key...]",
		Short: "Reads several records in one fan-out",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			namespace, set, rest := args[0], args[1], args[2:]
			keys := make([]types.Key, len(rest))
			for i, k := range rest {
				keys[i] = types.NewKey(namespace, set, types.StringValue(k))
			}

			rs := cl.BatchGet(keys, nil, cfg.BatchPolicy)
			defer rs.Stop()
			for rec := range rs.Results() {
				if rec == nil {
					fmt.Println("  (miss)")
					continue
				}
				fmt.Printf("  bins=%d\n", len(rec.Bins))
			}
			return rs.Err()
		},
	}

	scanCmd = &cobra.Command{
		Use:   "scan [namespace] [set]",
		Short: "Scans every record of a namespace/set across all nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			rs := cl.Scan(args[0], args[1], cfg.ScanQueryPolicy)
			defer rs.Stop()
			count := 0
			for range rs.Results() {
				count++
			}
			if err := rs.Err(); err != nil {
				return err
			}
			fmt.Printf("scanned %d records\n", count)
			return nil
		},
	}

	queryCmd = &cobra.Command{
		Use:   "query [namespace] [set] [bin] [min] [max]",
		Short: "Queries a numeric-bin range across all nodes",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := cfg.NewClient()
			defer cl.Close()

			var min, max int64
			if _, err := fmt.Sscanf(args[3], "%d", &min); err != nil {
				return fmt.Errorf("min must be a number: %w", err)
			}
			if _, err := fmt.Sscanf(args[4], "%d", &max); err != nil {
				return fmt.Errorf("max must be a number: %w", err)
			}

			filter := command.RangeFilter{BinName: args[2], Min: min, Max: max}
			rs := cl.Query(args[0], args[1], filter, cfg.ScanQueryPolicy)
			defer rs.Stop()
			count := 0
			for range rs.Results() {
				count++
			}
			if err := rs.Err(); err != nil {
				return err
			}
			fmt.Printf("matched %d records\n", count)
			return nil
		},
	}
)
