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

// Package crtcfg is the viper-backed loader for a Runtime's construction
// parameters (SPEC_FULL.md §1): the transport info string, server/client
// role, per-endpoint inflight cap, default RPC timeout and the tree fan-out
// ratio used when a collective's topology is not otherwise specified.
package crtcfg

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/rpc"
	"github.com/gocrt/crt/tree"
)

// Runtime is the subset of configuration crt.Init needs to bring up a
// process's transport class, default context and tree defaults.
type Runtime struct {
	// Info is the transport class's bind/dial string (e.g. "bmi+tcp://0.0.0.0:31416").
	Info string `mapstructure:"info"`
	// IsServer marks this process as accepting inbound connections.
	IsServer bool `mapstructure:"is_server"`
	// MaxInflight bounds concurrent in-flight RPCs per destination rank.
	MaxInflight int `mapstructure:"max_inflight"`
	// DefaultTimeout is send/send_sync's timeout when the caller passes 0.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// TreeKind selects flat/k-ary/k-nomial fan-out for collectives that
	// don't pin their own topology.
	TreeKind string `mapstructure:"tree_kind"`
	// TreeRatio is the fan-out/fan-in ratio for non-flat topologies.
	TreeRatio uint `mapstructure:"tree_ratio"`
	// LogFile/LogMask mirror CRT_LOG_FILE/CRT_LOG_MASK so they can also be
	// set via config file/flags instead of the environment (spec.md §6).
	LogFile string `mapstructure:"log_file"`
	LogMask string `mapstructure:"log_mask"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("info", "bmi+tcp://0.0.0.0:0")
	v.SetDefault("is_server", false)
	v.SetDefault("max_inflight", 32)
	v.SetDefault("default_timeout", time.Duration(rpc.DefaultTimeoutUS)*time.Microsecond)
	v.SetDefault("tree_kind", "kary")
	v.SetDefault("tree_ratio", 2)
	v.SetDefault("log_file", "")
	v.SetDefault("log_mask", "info")
}

// New builds a *viper.Viper pre-seeded with defaults, CRT_-prefixed
// environment variable binding, and an optional config file at path (a
// missing path is not an error — defaults and env vars still apply).
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("crt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	return v, nil
}

// Load reads v into a Runtime and validates its bounds.
func Load(v *viper.Viper) (Runtime, error) {
	var r Runtime
	if err := v.Unmarshal(&r); err != nil {
		return Runtime{}, err
	}
	return r, r.Validate()
}

// Validate enforces the bounds SPEC_FULL.md's wiring requires: a nonempty
// transport info string, a positive inflight cap, and (for non-flat
// topologies) a tree ratio within tree.MinRatio/tree.MaxRatio.
func (r Runtime) Validate() error {
	if r.Info == "" {
		return crterr.New(crterr.INVAL)
	}
	if r.MaxInflight <= 0 {
		return crterr.New(crterr.INVAL)
	}
	if _, err := r.Topology(); err != nil {
		return err
	}
	return nil
}

// Topology builds the tree.Topology this Runtime names.
func (r Runtime) Topology() (tree.Topology, error) {
	switch strings.ToLower(r.TreeKind) {
	case "flat":
		return tree.NewTopology(tree.Flat, r.TreeRatio)
	case "kary", "k-ary":
		return tree.NewTopology(tree.KAry, r.TreeRatio)
	case "knomial", "k-nomial":
		return tree.NewTopology(tree.KNomial, r.TreeRatio)
	default:
		return tree.Topology{}, crterr.New(crterr.INVAL)
	}
}

// DefaultTimeoutUS is r.DefaultTimeout expressed in the microseconds unit
// the rpc package's Send/SendSync take.
func (r Runtime) DefaultTimeoutUS() int64 {
	return r.DefaultTimeout.Microseconds()
}
