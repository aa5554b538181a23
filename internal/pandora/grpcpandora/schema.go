package grpcpandora

import (
	"context"
	"embed"
	"fmt"
	"io"
	"sync"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"
)

//go:embed proto
var protoFS embed.FS

// protoFiles are the vendored interface definitions, relative to the proto/ directory.
var protoFiles = []string{
	"pandora/host.proto",
	"pandora/security.proto",
	"pandora/a2dp.proto",
	"pandora_experimental/gatt.proto",
	"pandora_experimental/hap.proto",
	"pandora_experimental/vcp.proto",
	"pandora_experimental/l2cap.proto",
	"pandora_experimental/rfcomm.proto",
	"pandora_experimental/os.proto",
	"pandora_experimental/bumble_config.proto",
}

// schema indexes the compiled descriptors by full name.
type schema struct {
	messages map[protoreflect.FullName]protoreflect.MessageDescriptor
	services map[protoreflect.FullName]protoreflect.ServiceDescriptor
}

var (
	schemaOnce sync.Once
	loaded     *schema
	loadErr    error
)

// loadSchema compiles the embedded definitions once per process.
func loadSchema(ctx context.Context) (*schema, error) {
	schemaOnce.Do(func() {
		loaded, loadErr = compileSchema(ctx)
	})
	return loaded, loadErr
}

func compileSchema(ctx context.Context) (*schema, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: func(path string) (io.ReadCloser, error) {
				return protoFS.Open("proto/" + path)
			},
		}),
	}
	files, err := compiler.Compile(ctx, protoFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pandora interfaces: %w", err)
	}

	s := &schema{
		messages: make(map[protoreflect.FullName]protoreflect.MessageDescriptor),
		services: make(map[protoreflect.FullName]protoreflect.ServiceDescriptor),
	}
	for _, f := range files {
		s.addMessages(f.Messages())
		svcs := f.Services()
		for i := 0; i < svcs.Len(); i++ {
			s.services[svcs.Get(i).FullName()] = svcs.Get(i)
		}
	}
	return s, nil
}

func (s *schema) addMessages(mds protoreflect.MessageDescriptors) {
	for i := 0; i < mds.Len(); i++ {
		md := mds.Get(i)
		s.messages[md.FullName()] = md
		s.addMessages(md.Messages())
	}
}

// method resolves a fully-qualified RPC such as "pandora.Host/Connect".
func (s *schema) method(service, name string) (protoreflect.MethodDescriptor, error) {
	sd, ok := s.services[protoreflect.FullName(service)]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	md := sd.Methods().ByName(protoreflect.Name(name))
	if md == nil {
		return nil, fmt.Errorf("unknown method %s/%s", service, name)
	}
	return md, nil
}

// message returns the descriptor of a message compiled from the embedded files.
// The set of names is fixed at build time, so a miss is a programming error.
func (s *schema) message(name protoreflect.FullName) protoreflect.MessageDescriptor {
	md, ok := s.messages[name]
	if !ok {
		panic(fmt.Sprintf("grpcpandora: message %s not in embedded schema", name))
	}
	return md
}
