/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// crtd is a minimal demo process: bring up a Runtime over one transport
// address, register a ping opcode, and either serve (--server) or issue
// a single ping against a peer (--peer) before exiting. It exists to
// exercise crt.Init/Send end to end, not as a production daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gocrt/crt/crt"
	"github.com/gocrt/crt/crtcfg"
	"github.com/gocrt/crt/crtlog"
	"github.com/gocrt/crt/group"
	"github.com/gocrt/crt/opcode"
	"github.com/gocrt/crt/rpc"
)

const pingOpcode opcode.Opcode = 100

func registerPing(r *crt.Runtime) error {
	return r.Registry().Register(opcode.OpcodeInfo{
		Opc:            pingOpcode,
		RequestFormat:  []opcode.FieldDescriptor{{Name: "n", Kind: opcode.KindUint64}},
		ResponseFormat: []opcode.FieldDescriptor{{Name: "n", Kind: opcode.KindUint64}},
		Handler: func(req opcode.Request) (map[string]any, error) {
			return map[string]any{"n": req.Body["n"]}, nil
		},
	})
}

func main() {
	var (
		info        string
		peer        string
		configFile  string
		maxInflight int
	)

	root := &cobra.Command{
		Use:   "crtd",
		Short: "demo process for the crt RPC runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := crtcfg.New(configFile)
			if err != nil {
				return err
			}
			v.Set("info", info)
			if maxInflight > 0 {
				v.Set("max_inflight", maxInflight)
			}
			v.Set("is_server", peer == "")

			cfg, err := crtcfg.Load(v)
			if err != nil {
				return err
			}

			lg, err := crtlog.New(cmd.Context(), 64)
			if err != nil {
				return err
			}

			// In server mode rank 0 is this process's own primary-group
			// membership, exercising the local-address short-circuit; in
			// client mode it names a remote peer, so the group is marked
			// non-primary and Send always takes the transport path.
			grp := group.NewStatic(cmd.Context(), "world", []uint32{0}, 0, peer == "", false, 0)
			svc := group.NewStaticService(grp)

			rt, err := crt.Init(cmd.Context(), cfg, 1, grp, svc, lg)
			if err != nil {
				return err
			}
			defer rt.Finalize()

			if err := registerPing(rt); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", rt.SelfAddress())

			if peer == "" {
				return serve(cmd.Context(), rt)
			}
			grp.CacheAddr(0, 0, 0, peer)
			return ping(rt)
		},
	}

	root.Flags().StringVar(&info, "info", "bmi+tcp://0.0.0.0:0", "this process's transport bind/dial string")
	root.Flags().StringVar(&peer, "peer", "", "peer address to ping; empty means serve")
	root.Flags().StringVar(&configFile, "config", "", "optional config file (viper-readable)")
	root.Flags().IntVar(&maxInflight, "max-inflight", 0, "override max inflight RPCs per rank (0 keeps the config default)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, rt *crt.Runtime) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		crtCtx := rt.Context(0)
		for {
			select {
			case <-stop:
				return
			default:
				crtCtx.Progress(50_000)
			}
		}
	}()

	<-stop
	<-done
	return nil
}

func ping(rt *crt.Runtime) error {
	crtCtx := rt.Context(0)
	done := make(chan error, 1)

	_, err := rt.Send(context.Background(), 0, rpc.Endpoint{Rank: 0}, pingOpcode,
		map[string]any{"n": uint64(1)},
		func(r *rpc.RPC, err error) { done <- err }, 0)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ping timed out")
		}
		crtCtx.Progress(10_000)
	}
}
