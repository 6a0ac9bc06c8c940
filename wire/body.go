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

package wire

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/opcode"
)

var encMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// PackBody encodes in against fmt as canonical CBOR. Only the fields
// named by fmt are encoded, as one CBOR map whose keys follow canonical
// CBOR ordering (not fmt's order), giving every registered type a single
// deterministic wire representation (spec.md §4.C, Testable Property 8).
func PackBody(fmt []opcode.FieldDescriptor, in map[string]any) ([]byte, error) {
	ordered := make(map[string]any, len(fmt))
	for _, f := range fmt {
		v, ok := in[f.Name]
		if !ok {
			return nil, crterr.New(crterr.INVAL)
		}
		if err := checkKind(f, v); err != nil {
			return nil, err
		}
		ordered[f.Name] = v
	}

	b, err := encMode.Marshal(ordered)
	if err != nil {
		return nil, crterr.New(crterr.PROTO, err)
	}
	return b, nil
}

// UnpackBody decodes cursor against fmt and returns the decoded fields;
// cursor must hold exactly one encoded body. Unpacking may allocate;
// any allocation is reclaimed by the caller's later free_input/free_output
// against the owning transport handle (spec.md §4.C) — in this codec that
// reclamation is simply letting the returned map become garbage.
func UnpackBody(fmt []opcode.FieldDescriptor, cursor []byte) (map[string]any, error) {
	var raw map[string]any
	if err := cbor.Unmarshal(cursor, &raw); err != nil {
		return nil, crterr.New(crterr.PROTO, err)
	}

	out := make(map[string]any, len(fmt))
	for _, f := range fmt {
		v, ok := raw[f.Name]
		if !ok {
			return nil, crterr.New(crterr.TRUNC)
		}
		cv, err := coerce(f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = cv
	}
	return out, nil
}

// UnpackCleanup releases codec-owned temporaries when a request is
// aborted before its body is decoded. This codec holds no handle-owned
// state outside the returned map, so cleanup is a no-op; it exists so
// callers that abort mid-decode have a single place to call regardless of
// codec implementation (spec.md §4.C).
func UnpackCleanup(_ []byte) {}

func checkKind(f opcode.FieldDescriptor, v any) error {
	switch f.Kind {
	case opcode.KindString:
		s, ok := v.(string)
		if !ok {
			return crterr.New(crterr.INVAL)
		}
		if f.MaxLen > 0 && len(s) > f.MaxLen {
			return crterr.New(crterr.TRUNC)
		}
	case opcode.KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return crterr.New(crterr.INVAL)
		}
		if f.MaxLen > 0 && len(b) > f.MaxLen {
			return crterr.New(crterr.TRUNC)
		}
	case opcode.KindRankList:
		r, ok := v.([]uint32)
		if !ok {
			return crterr.New(crterr.INVAL)
		}
		if f.MaxLen > 0 && len(r) > f.MaxLen {
			return crterr.New(crterr.TRUNC)
		}
	}
	return nil
}

// coerce normalizes a decoded CBOR value back to the Go type the field
// descriptor declares, since generic map decode yields the library's
// native numeric types (e.g. uint64 for all unsigned integers).
func coerce(f opcode.FieldDescriptor, v any) (any, error) {
	switch f.Kind {
	case opcode.KindUint8:
		return toUint8(v)
	case opcode.KindUint32:
		return toUint32(v)
	case opcode.KindUint64:
		return toUint64(v)
	case opcode.KindInt32:
		return toInt32(v)
	case opcode.KindInt64:
		return toInt64(v)
	case opcode.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, crterr.New(crterr.INVAL)
		}
		return b, nil
	case opcode.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, crterr.New(crterr.INVAL)
		}
		if f.MaxLen > 0 && len(s) > f.MaxLen {
			return nil, crterr.New(crterr.TRUNC)
		}
		return s, nil
	case opcode.KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, crterr.New(crterr.INVAL)
		}
		return b, nil
	case opcode.KindRankList:
		return toRankList(v)
	default:
		return v, nil
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	default:
		return 0, crterr.New(crterr.INVAL)
	}
}

func toUint32(v any) (uint32, error) {
	n, err := toUint64(v)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func toUint8(v any) (uint8, error) {
	n, err := toUint64(v)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, crterr.New(crterr.INVAL)
	}
}

func toInt32(v any) (int32, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func toRankList(v any) ([]uint32, error) {
	switch s := v.(type) {
	case []uint32:
		return s, nil
	case []any:
		out := make([]uint32, 0, len(s))
		for _, e := range s {
			u, err := toUint32(e)
			if err != nil {
				return nil, err
			}
			out = append(out, u)
		}
		return out, nil
	default:
		return nil, crterr.New(crterr.INVAL)
	}
}
