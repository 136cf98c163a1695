package grpc

import (
	"context"
	"fmt"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Reply is what a handler returns. Get and RunQuery read Rows (and Total);
// Create and Update read Record, falling back to the first row.
type Reply struct {
	Rows   []map[string]string
	Total  int64
	Record map[string]string
}

// HandlerFunc serves one method. req holds the populated request fields:
// strings, int64s, map[string]string for maps and []string for lists.
type HandlerFunc func(ctx context.Context, req map[string]any) (*Reply, error)

type Handlers map[Method]HandlerFunc

// NewServiceDesc exposes handlers as service over the remote query wire contract.
// Methods without a handler answer Unimplemented.
func NewServiceDesc(service string, handlers Handlers) *grpclib.ServiceDesc {
	if service == "" {
		service = DefaultServiceName
	}
	desc := &grpclib.ServiceDesc{
		ServiceName: service,
		HandlerType: (*any)(nil),
		Metadata:    protoFile,
	}
	for _, m := range Methods {
		desc.Methods = append(desc.Methods, grpclib.MethodDesc{
			MethodName: string(m),
			Handler:    methodHandler(service, m, handlers[m]),
		})
	}
	return desc
}

func methodHandler(service string, m Method, h HandlerFunc) grpclib.MethodHandler {
	r := defaultSchema.rpcs[m]
	return func(
		_ any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpclib.UnaryServerInterceptor,
	) (any, error) {
		req := dynamicpb.NewMessage(r.request)
		if err := dec(req); err != nil {
			return nil, err
		}
		serve := func(ctx context.Context, in any) (any, error) {
			if h == nil {
				return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", m)
			}
			reply, err := h(ctx, messageFields(in.(*dynamicpb.Message)))
			if err != nil {
				return nil, err
			}
			return encodeReply(r.response, reply)
		}
		if interceptor == nil {
			return serve(ctx, req)
		}
		info := &grpclib.UnaryServerInfo{Server: nil, FullMethod: FullMethod(service, m)}
		return interceptor(ctx, req, info, serve)
	}
}

func encodeReply(md protoreflect.MessageDescriptor, reply *Reply) (*dynamicpb.Message, error) {
	resp := dynamicpb.NewMessage(md)
	if reply == nil {
		return resp, nil
	}
	fields := md.Fields()
	if fd := fields.ByName(fieldRows); fd != nil {
		list := resp.Mutable(fd).List()
		for _, row := range reply.Rows {
			list.Append(protoreflect.ValueOfMessage(rowMessage(fd.Message(), row)))
		}
	}
	if fd := fields.ByName(fieldTotal); fd != nil && reply.Total != 0 {
		resp.Set(fd, protoreflect.ValueOfInt64(reply.Total))
	}
	if fd := fields.ByName(fieldRecord); fd != nil {
		record := reply.Record
		if record == nil && len(reply.Rows) > 0 {
			record = reply.Rows[0]
		}
		if record != nil {
			resp.Set(fd, protoreflect.ValueOfMessage(rowMessage(fd.Message(), record)))
		}
	}
	return resp, nil
}

func rowMessage(md protoreflect.MessageDescriptor, fields map[string]string) *dynamicpb.Message {
	row := dynamicpb.NewMessage(md)
	fd := md.Fields().ByName(fieldFields)
	if fd == nil {
		panic(fmt.Sprintf("message %s has no %s field", md.FullName(), fieldFields))
	}
	m := row.Mutable(fd).Map()
	for k, v := range fields {
		m.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(v))
	}
	return row
}
