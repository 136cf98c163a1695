package query

import (
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/compozy/remotequery/engine/transport"
)

// hydrate decodes rec into a T using json tags. Inputs are weakly typed so
// string ids and numeric strings land in numeric fields.
func hydrate[T any](rec transport.Record) (*T, error) {
	out := new(T)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Squash:           true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return nil, transport.NewDecodeError("record", err)
	}
	if err := dec.Decode(map[string]any(rec)); err != nil {
		return nil, transport.NewDecodeError("record", err)
	}
	return out, nil
}

func hydrateAll[T any](records []transport.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := hydrate[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}
