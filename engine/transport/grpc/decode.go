package grpc

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/compozy/remotequery/engine/transport"
)

// rowRecord flattens a Row message into a Record.
func rowRecord(row protoreflect.Message) transport.Record {
	fd := row.Descriptor().Fields().ByName(fieldFields)
	rec := transport.Record{}
	if fd == nil || !row.Has(fd) {
		return rec
	}
	row.Get(fd).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		rec[k.String()] = v.String()
		return true
	})
	return rec
}

// rowsOf reads the repeated rows field of a response message.
func rowsOf(msg protoreflect.Message) []transport.Record {
	fd := msg.Descriptor().Fields().ByName(fieldRows)
	out := []transport.Record{}
	if fd == nil {
		return out
	}
	list := msg.Get(fd).List()
	for i := 0; i < list.Len(); i++ {
		out = append(out, rowRecord(list.Get(i).Message()))
	}
	return out
}

func totalOf(msg protoreflect.Message) int64 {
	fd := msg.Descriptor().Fields().ByName(fieldTotal)
	if fd == nil {
		return 0
	}
	return msg.Get(fd).Int()
}

// recordOf reads the record field of a WriteResponse. An unset record yields nil.
func recordOf(msg protoreflect.Message) transport.Record {
	fd := msg.Descriptor().Fields().ByName(fieldRecord)
	if fd == nil || !msg.Has(fd) {
		return nil
	}
	return rowRecord(msg.Get(fd).Message())
}

// normalizeGet shapes GetResponse rows like the REST API would answer:
// a page envelope, a single object, or a plain array.
func normalizeGet(rows []transport.Record, total int64, params transport.Params, id string) any {
	if _, ok := params[fieldPage]; ok {
		return map[string]any{"data": rows, "total": total}
	}
	_, aggregate := params[fieldAggregate]
	if aggregate || id != "" {
		if len(rows) == 0 {
			return nil
		}
		return rows[0]
	}
	return rows
}

// messageFields converts the populated fields of a request into plain Go values.
func messageFields(msg protoreflect.Message) map[string]any {
	out := map[string]any{}
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		name := string(fd.Name())
		switch {
		case fd.IsMap():
			m := map[string]string{}
			v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
				m[k.String()] = mv.String()
				return true
			})
			out[name] = m
		case fd.IsList():
			list := v.List()
			items := make([]string, 0, list.Len())
			for i := 0; i < list.Len(); i++ {
				items = append(items, list.Get(i).String())
			}
			out[name] = items
		case fd.Kind() == protoreflect.Int64Kind:
			out[name] = v.Int()
		case fd.Kind() == protoreflect.MessageKind:
			out[name] = messageFields(v.Message())
		default:
			out[name] = v.String()
		}
		return true
	})
	return out
}
