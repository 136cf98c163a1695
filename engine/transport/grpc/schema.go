package grpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	protoFile    = "eloquent/query.proto"
	protoPackage = "eloquent.query"

	DefaultServiceName = protoPackage + ".RemoteEloquentService"
)

// Method is a logical RPC of the remote query service.
type Method string

const (
	MethodGet      Method = "Get"
	MethodCreate   Method = "Create"
	MethodUpdate   Method = "Update"
	MethodDelete   Method = "Delete"
	MethodRunQuery Method = "RunQuery"
)

// Methods lists every RPC in declaration order.
var Methods = []Method{MethodGet, MethodCreate, MethodUpdate, MethodDelete, MethodRunQuery}

// FullMethod returns "/<service>/<method>".
func FullMethod(service string, m Method) string {
	return fmt.Sprintf("/%s/%s", service, m)
}

// Message names
const (
	msgQueryRequest   = "QueryRequest"
	msgQueryResponse  = "QueryResponse"
	msgRow            = "Row"
	msgGetRequest     = "GetRequest"
	msgGetResponse    = "GetResponse"
	msgWriteRequest   = "WriteRequest"
	msgWriteResponse  = "WriteResponse"
	msgDeleteRequest  = "DeleteRequest"
	msgDeleteResponse = "DeleteResponse"
)

// Field names shared by several messages
const (
	fieldResource   = "resource"
	fieldID         = "id"
	fieldFilters    = "filters"
	fieldSort       = "sort"
	fieldPage       = "page"
	fieldPerPage    = "per_page"
	fieldAggregate  = "aggregate"
	fieldColumn     = "column"
	fieldAttributes = "attributes"
	fieldSQL        = "sql"
	fieldArgs       = "args"
	fieldRows       = "rows"
	fieldTotal      = "total"
	fieldFields     = "fields"
	fieldRecord     = "record"
)

type rpc struct {
	request  protoreflect.MessageDescriptor
	response protoreflect.MessageDescriptor
}

// schema is the message set of the remote query service, built once from a
// hand-written file descriptor.
type schema struct {
	file     protoreflect.FileDescriptor
	rpcs     map[Method]rpc
	builders map[protoreflect.FullName]*requestBuilder
}

var defaultSchema = mustBuildSchema()

func mustBuildSchema() *schema {
	s, err := buildSchema()
	if err != nil {
		panic(fmt.Sprintf("invalid remote query schema: %v", err))
	}
	return s
}

func buildSchema() (*schema, error) {
	fd, err := protodesc.NewFile(fileDescriptorProto(), new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build file descriptor: %w", err)
	}
	msgs := fd.Messages()
	lookup := func(name string) (protoreflect.MessageDescriptor, error) {
		md := msgs.ByName(protoreflect.Name(name))
		if md == nil {
			return nil, fmt.Errorf("message %s not found", name)
		}
		return md, nil
	}
	pairs := map[Method][2]string{
		MethodGet:      {msgGetRequest, msgGetResponse},
		MethodCreate:   {msgWriteRequest, msgWriteResponse},
		MethodUpdate:   {msgWriteRequest, msgWriteResponse},
		MethodDelete:   {msgDeleteRequest, msgDeleteResponse},
		MethodRunQuery: {msgQueryRequest, msgQueryResponse},
	}
	s := &schema{
		file:     fd,
		rpcs:     make(map[Method]rpc, len(pairs)),
		builders: make(map[protoreflect.FullName]*requestBuilder),
	}
	for method, pair := range pairs {
		req, err := lookup(pair[0])
		if err != nil {
			return nil, err
		}
		resp, err := lookup(pair[1])
		if err != nil {
			return nil, err
		}
		s.rpcs[method] = rpc{request: req, response: resp}
		if _, ok := s.builders[req.FullName()]; !ok {
			s.builders[req.FullName()] = newRequestBuilder(req)
		}
	}
	return s, nil
}

func (s *schema) rpc(m Method) (rpc, error) {
	r, ok := s.rpcs[m]
	if !ok {
		return rpc{}, fmt.Errorf("unknown method %q", m)
	}
	return r, nil
}

func (s *schema) builder(md protoreflect.MessageDescriptor) *requestBuilder {
	return s.builders[md.FullName()]
}

func newMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

// fileDescriptorProto describes:
//
//	message QueryRequest   { string sql = 1; repeated string args = 2; }
//	message QueryResponse  { repeated Row rows = 1; }
//	message Row            { map<string,string> fields = 1; }
//	message GetRequest     { string resource = 1; string id = 2; map<string,string> filters = 3;
//	                         string sort = 4; int64 page = 5; int64 per_page = 6;
//	                         string aggregate = 7; string column = 8; }
//	message GetResponse    { repeated Row rows = 1; int64 total = 2; }
//	message WriteRequest   { string resource = 1; string id = 2; map<string,string> attributes = 3; }
//	message WriteResponse  { Row record = 1; }
//	message DeleteRequest  { string resource = 1; string id = 2; }
//	message DeleteResponse {}
func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	i64 := descriptorpb.FieldDescriptorProto_TYPE_INT64
	rowField := func(name string, num int32, repeated bool) *descriptorpb.FieldDescriptorProto {
		f := messageField(name, num, msgRow)
		if repeated {
			f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		}
		return f
	}
	fieldsMap, fieldsEntry := mapField(fieldFields, 1, msgRow)
	filtersMap, filtersEntry := mapField(fieldFilters, 3, msgGetRequest)
	attrsMap, attrsEntry := mapField(fieldAttributes, 3, msgWriteRequest)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(protoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String(msgQueryRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField(fieldSQL, 1, str),
					repeatedField(fieldArgs, 2, str),
				},
			},
			{
				Name:  proto.String(msgQueryResponse),
				Field: []*descriptorpb.FieldDescriptorProto{rowField(fieldRows, 1, true)},
			},
			{
				Name:       proto.String(msgRow),
				Field:      []*descriptorpb.FieldDescriptorProto{fieldsMap},
				NestedType: []*descriptorpb.DescriptorProto{fieldsEntry},
			},
			{
				Name: proto.String(msgGetRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField(fieldResource, 1, str),
					scalarField(fieldID, 2, str),
					filtersMap,
					scalarField(fieldSort, 4, str),
					scalarField(fieldPage, 5, i64),
					scalarField(fieldPerPage, 6, i64),
					scalarField(fieldAggregate, 7, str),
					scalarField(fieldColumn, 8, str),
				},
				NestedType: []*descriptorpb.DescriptorProto{filtersEntry},
			},
			{
				Name: proto.String(msgGetResponse),
				Field: []*descriptorpb.FieldDescriptorProto{
					rowField(fieldRows, 1, true),
					scalarField(fieldTotal, 2, i64),
				},
			},
			{
				Name: proto.String(msgWriteRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField(fieldResource, 1, str),
					scalarField(fieldID, 2, str),
					attrsMap,
				},
				NestedType: []*descriptorpb.DescriptorProto{attrsEntry},
			},
			{
				Name:  proto.String(msgWriteResponse),
				Field: []*descriptorpb.FieldDescriptorProto{rowField(fieldRecord, 1, false)},
			},
			{
				Name: proto.String(msgDeleteRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField(fieldResource, 1, str),
					scalarField(fieldID, 2, str),
				},
			},
			{Name: proto.String(msgDeleteResponse)},
		},
	}
}

func scalarField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeatedField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	f := scalarField(name, num, typ)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func messageField(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String("." + protoPackage + "." + typeName),
	}
}

// mapField returns a map<string,string> field of parent and its synthetic entry message.
func mapField(name string, num int32, parent string) (*descriptorpb.FieldDescriptorProto, *descriptorpb.DescriptorProto) {
	entryName := mapEntryName(name)
	entry := &descriptorpb.DescriptorProto{
		Name: proto.String(entryName),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalarField("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			scalarField("value", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
	field := messageField(name, num, parent+"."+entryName)
	field.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return field, entry
}

// mapEntryName follows protoc: "per_page" becomes "PerPageEntry".
func mapEntryName(field string) string {
	out := make([]byte, 0, len(field)+5)
	upper := true
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out) + "Entry"
}
