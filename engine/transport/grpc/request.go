package grpc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/compozy/remotequery/engine/transport"
)

// setter assigns one logical field of a request message.
type setter func(msg *dynamicpb.Message, value any) error

// requestBuilder holds the closed setter table of one request message kind.
type requestBuilder struct {
	desc    protoreflect.MessageDescriptor
	setters map[string]setter
}

func newRequestBuilder(md protoreflect.MessageDescriptor) *requestBuilder {
	b := &requestBuilder{desc: md, setters: make(map[string]setter)}
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if s := setterFor(fd); s != nil {
			b.setters[string(fd.Name())] = s
		}
	}
	return b
}

func setterFor(fd protoreflect.FieldDescriptor) setter {
	switch {
	case fd.IsMap() && fd.MapKey().Kind() == protoreflect.StringKind &&
		fd.MapValue().Kind() == protoreflect.StringKind:
		return func(msg *dynamicpb.Message, value any) error {
			entries, err := toStringMap(value)
			if err != nil {
				return err
			}
			m := msg.Mutable(fd).Map()
			for k, v := range entries {
				m.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(v))
			}
			return nil
		}
	case fd.IsList() && fd.Kind() == protoreflect.StringKind:
		return func(msg *dynamicpb.Message, value any) error {
			items, err := toStringSlice(value)
			if err != nil {
				return err
			}
			list := msg.Mutable(fd).List()
			for _, item := range items {
				list.Append(protoreflect.ValueOfString(item))
			}
			return nil
		}
	case fd.Cardinality() != protoreflect.Repeated && fd.Kind() == protoreflect.StringKind:
		return func(msg *dynamicpb.Message, value any) error {
			msg.Set(fd, protoreflect.ValueOfString(transport.Stringify(value)))
			return nil
		}
	case fd.Cardinality() != protoreflect.Repeated && fd.Kind() == protoreflect.Int64Kind:
		return func(msg *dynamicpb.Message, value any) error {
			n, err := toInt64(value)
			if err != nil {
				return fmt.Errorf("field %s: %w", fd.Name(), err)
			}
			msg.Set(fd, protoreflect.ValueOfInt64(n))
			return nil
		}
	default:
		return nil
	}
}

// build creates a request message from fields. Keys without a setter fail in
// strict mode and are reported through skipped otherwise.
func (b *requestBuilder) build(
	fields map[string]any,
	strict bool,
	skipped func(field string),
) (*dynamicpb.Message, error) {
	msg := newMessage(b.desc)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		set, ok := b.setters[key]
		if !ok {
			if strict {
				return nil, &transport.UnknownFieldError{Message: string(b.desc.Name()), Field: key}
			}
			if skipped != nil {
				skipped(key)
			}
			continue
		}
		if err := set(msg, fields[key]); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

const (
	filterPrefix = "filter["
	filterSuffix = "]"
)

// getFields maps rendered query params onto GetRequest fields:
// filter[<k>] entries are gathered into the filters map.
func getFields(resource, id string, params transport.Params) map[string]any {
	fields := map[string]any{fieldResource: resource}
	if id != "" {
		fields[fieldID] = id
	}
	filters := map[string]string{}
	for k, v := range params {
		if strings.HasPrefix(k, filterPrefix) && strings.HasSuffix(k, filterSuffix) {
			filters[strings.TrimSuffix(strings.TrimPrefix(k, filterPrefix), filterSuffix)] = v
			continue
		}
		fields[k] = v
	}
	if len(filters) > 0 {
		fields[fieldFilters] = filters
	}
	return fields
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	}
	d, err := decimal.NewFromString(transport.Stringify(v))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", transport.Stringify(v))
	}
	return d.IntPart(), nil
}

func toStringMap(v any) (map[string]string, error) {
	switch t := v.(type) {
	case map[string]string:
		return t, nil
	case transport.Params:
		return t, nil
	case transport.Record:
		return stringMapOf(t), nil
	case map[string]any:
		return stringMapOf(t), nil
	default:
		return nil, fmt.Errorf("expected a map, got %T", v)
	}
}

func stringMapOf(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = transport.Stringify(v)
	}
	return out
}

func toStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = transport.Stringify(item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}
