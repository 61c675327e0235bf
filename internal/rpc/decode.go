package rpc

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode reconstructs a concrete Go value out of src, the shape the
// msgpack codec actually hands back for anything that crossed the wire
// as a Request.Params value or a Reply.Data value. msgpack carries no
// Go type identity: every struct decodes to map[string]any and every
// slice to []any, so a plain type assertion against a concrete struct
// or typed map/slice fails even though the data is all there. Handlers
// that need a concrete type back call Decode instead of asserting.
//
// dst must be a non-nil pointer. WeaklyTypedInput covers msgpack's
// habit of decoding integers as int64 where a struct field is declared
// int. A small bag of plain assertions (string, bool, map[string]any,
// []any, or the numeric kinds handled by toInt) never needs this: those
// already decode to their asserted type.
func Decode(src, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}
