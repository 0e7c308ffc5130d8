package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AdminServiceName = "petlobby.admin.v1.Admin"
	emitMethod       = "/" + AdminServiceName + "/Emit"
)

// Emitter pushes an event into a room, or to everyone for an empty room.
type Emitter interface {
	Emit(event, room string, data json.RawMessage) error
}

// AdminServer is the server API of petlobby.admin.v1.Admin. Requests and
// replies are google.protobuf.Struct so no generated code is needed.
type AdminServer interface {
	Emit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Emit", Handler: emitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "petlobby/admin/v1/admin.proto",
}

func emitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Emit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: emitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).Emit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminService implements AdminServer over an Emitter.
type AdminService struct {
	emitter Emitter
}

func NewAdminService(emitter Emitter) *AdminService {
	return &AdminService{emitter: emitter}
}

// Emit expects {event, room?, data?}.
func (a *AdminService) Emit(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	event := fields["event"].GetStringValue()
	if event == "" {
		return nil, status.Error(codes.InvalidArgument, "event is required")
	}
	room := fields["room"].GetStringValue()

	var data json.RawMessage
	if v, ok := fields["data"]; ok {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "data: %v", err)
		}
		data = raw
	}

	if err := a.emitter.Emit(event, room, data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{
		"success": true,
		"event":   event,
		"room":    room,
	})
}

// tokenInterceptor requires "authorization: Bearer <token>" on admin calls
// when token is set. Health checks are always open.
func tokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if token == "" || !strings.HasPrefix(info.FullMethod, "/"+AdminServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		for _, v := range md.Get("authorization") {
			if strings.TrimPrefix(v, "Bearer ") == token {
				return handler(ctx, req)
			}
		}
		return nil, status.Error(codes.Unauthenticated, "invalid admin token")
	}
}

// Emit calls petlobby.admin.v1.Admin/Emit on cc.
func Emit(ctx context.Context, cc grpc.ClientConnInterface, event, room string, data interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]interface{}{"event": event, "room": room}
	if data != nil {
		fields["data"] = data
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, emitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
