// Package canpb encodes timestamped CAN frames and errors as protobuf
// messages of the canframe.v1 schema. The schema is assembled at init from a
// descriptor, so no generated code is involved; messages are dynamicpb values.
package canpb

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Package is the protobuf package of every message in the schema.
const Package = "canframe.v1"

const (
	fileName     = "canframe/v1/canframe.proto"
	durationType = ".google.protobuf.Duration"
)

var (
	fileProto = buildFileProto()
	file      = mustNewFile(fileProto)
)

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func timestamped(name, valueType string) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name: proto.String(name),
		Field: []*descriptorpb.FieldDescriptorProto{
			field("timestamp", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, durationType),
			field("value", 2, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, fmt.Sprintf(".%s.%s", Package, valueType)),
		},
	}
}

func buildFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(fileName),
		Package:    proto.String(Package),
		Syntax:     proto.String("proto3"),
		Dependency: []string{durationpb.File_google_protobuf_duration_proto.Path()},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("CanFrame"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32, ""),
					field("ide", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL, ""),
					field("rtr", 3, descriptorpb.FieldDescriptorProto_TYPE_BOOL, ""),
					field("dlc", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT32, ""),
					field("data", 5, descriptorpb.FieldDescriptorProto_TYPE_FIXED64, ""),
				},
			},
			{
				Name: proto.String("CanError"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("data", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64, ""),
					field("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
					field("description", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				},
			},
			timestamped("TimestampedCanFrame", "CanFrame"),
			timestamped("TimestampedCanError", "CanError"),
		},
	}
}

func mustNewFile(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(errors.Wrap(err, "build canframe schema"))
	}
	return fd
}

// File returns the canframe.v1 file descriptor.
func File() protoreflect.FileDescriptor { return file }

// FileDescriptorSet returns the serialized descriptor set of the schema and
// its imports, the form MCAP and Foxglove expect for protobuf channels.
func FileDescriptorSet() ([]byte, error) {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			protodesc.ToFileDescriptorProto(durationpb.File_google_protobuf_duration_proto),
			fileProto,
		},
	}
	data, err := proto.Marshal(set)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema descriptor")
	}
	return data, nil
}

func message(name protoreflect.Name) protoreflect.MessageDescriptor {
	md := file.Messages().ByName(name)
	if md == nil {
		panic(fmt.Sprintf("canpb: message %s missing from schema", name))
	}
	return md
}
