// Package protocol implements the wire encoding of routing advertisements exchanged between simulated routers.
//
// The encoding is protobuf compatible with the following schema:
//
//	message Advert {
//	  int64 src = 1;
//	  repeated Entry entries = 2;
//	}
//	message Entry {
//	  int64 dest = 1;
//	  uint32 metric = 2;
//	}
package protocol

import (
	"errors"
	"fmt"

	"github.com/encodeous/dvr/state"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	advertSrc     protowire.Number = 1
	advertEntries protowire.Number = 2
	entryDest     protowire.Number = 1
	entryMetric   protowire.Number = 2
)

var ErrMalformed = errors.New("malformed advertisement")

// entrySize is the encoded length of a single Entry message
func entrySize(e state.AdvEntry) int {
	return protowire.SizeTag(entryDest) + protowire.SizeVarint(uint64(e.Dest)) +
		protowire.SizeTag(entryMetric) + protowire.SizeVarint(uint64(e.Metric))
}

// Size returns the encoded length of adv
func Size(adv state.Advertisement) int {
	n := protowire.SizeTag(advertSrc) + protowire.SizeVarint(uint64(adv.Src))
	for _, e := range adv.Entries {
		n += protowire.SizeTag(advertEntries) + protowire.SizeBytes(entrySize(e))
	}
	return n
}

func Marshal(adv state.Advertisement) []byte {
	b := make([]byte, 0, Size(adv))
	b = protowire.AppendTag(b, advertSrc, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(adv.Src))
	for _, e := range adv.Entries {
		b = protowire.AppendTag(b, advertEntries, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(entrySize(e)))
		b = protowire.AppendTag(b, entryDest, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Dest))
		b = protowire.AppendTag(b, entryMetric, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Metric))
	}
	return b
}

func Unmarshal(b []byte) (state.Advertisement, error) {
	adv := state.Advertisement{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return adv, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == advertSrc && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return adv, fmt.Errorf("%w: src: %w", ErrMalformed, protowire.ParseError(n))
			}
			adv.Src = state.NodeId(v)
			b = b[n:]
		case num == advertEntries && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return adv, fmt.Errorf("%w: entry: %w", ErrMalformed, protowire.ParseError(n))
			}
			e, err := unmarshalEntry(v)
			if err != nil {
				return adv, err
			}
			adv.Entries = append(adv.Entries, e)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return adv, fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return adv, nil
}

func unmarshalEntry(b []byte) (state.AdvEntry, error) {
	e := state.AdvEntry{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("%w: entry: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ == protowire.VarintType && (num == entryDest || num == entryMetric) {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("%w: entry field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			if num == entryDest {
				e.Dest = state.NodeId(v)
			} else {
				// metrics above INF are clamped, they carry no extra meaning
				e.Metric = state.Metric(min(v, uint64(state.INF)))
			}
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return e, fmt.Errorf("%w: entry field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return e, nil
}
