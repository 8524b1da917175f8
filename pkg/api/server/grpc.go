package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ConfigServiceName is the fully qualified gRPC service name.
const ConfigServiceName = "configurine.v1.ConfigService"

const (
	methodAuthenticate = "/" + ConfigServiceName + "/Authenticate"
	methodResolve      = "/" + ConfigServiceName + "/Resolve"
	methodQuery        = "/" + ConfigServiceName + "/Query"

	// EntryIDsTrailer carries the tied entry IDs of a resolution conflict.
	EntryIDsTrailer = "x-entry-ids"
)

// ConfigServiceServer is the gRPC surface. Messages are protobuf well-known types so no
// generated code is needed.
type ConfigServiceServer interface {
	Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Query(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error)
}

// RegisterConfigServiceServer registers srv on s.
func RegisterConfigServiceServer(s grpc.ServiceRegistrar, srv ConfigServiceServer) {
	s.RegisterService(&configServiceDesc, srv)
}

var configServiceDesc = grpc.ServiceDesc{
	ServiceName: ConfigServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Authenticate", methodAuthenticate, func(srv ConfigServiceServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return srv.Authenticate(ctx, in)
		}),
		unaryMethod("Resolve", methodResolve, func(srv ConfigServiceServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return srv.Resolve(ctx, in)
		}),
		unaryMethod("Query", methodQuery, func(srv ConfigServiceServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return srv.Query(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "configurine/v1/config.proto",
}

func unaryMethod(name, fullMethod string, call func(ConfigServiceServer, context.Context, *structpb.Struct) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConfigServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ConfigServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ConfigServiceClient calls ConfigServiceServer over a client connection.
type ConfigServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewConfigServiceClient(cc grpc.ClientConnInterface) *ConfigServiceClient {
	return &ConfigServiceClient{cc: cc}
}

func (c *ConfigServiceClient) Authenticate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodAuthenticate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConfigServiceClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodResolve, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConfigServiceClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodQuery, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// grpcConfigServer implements ConfigServiceServer on top of the service layer.
type grpcConfigServer struct {
	configs *service.ConfigService
	tokens  *service.TokenService
	logger  log.Logger
}

var _ grpc_auth.ServiceAuthFuncOverride = (*grpcConfigServer)(nil)

func newGRPCConfigServer(configs *service.ConfigService, tokens *service.TokenService, logger log.Logger) *grpcConfigServer {
	return &grpcConfigServer{configs: configs, tokens: tokens, logger: logger}
}

// AuthFuncOverride lets the handshake through without a token.
func (s *grpcConfigServer) AuthFuncOverride(ctx context.Context, fullMethod string) (context.Context, error) {
	if fullMethod == methodAuthenticate {
		return ctx, nil
	}
	return authenticateMD(ctx, s.tokens, s.logger)
}

func (s *grpcConfigServer) Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := service.TokenRequest{
		ClientID:  stringField(in, "client_id"),
		Signature: stringField(in, "signature"),
		GrantType: stringField(in, "grant_type"),
	}
	ts, err := timestampField(in, "timestamp")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	req.Timestamp = ts

	resp, err := s.tokens.Issue(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"access_token": resp.AccessToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return out, nil
}

func (s *grpcConfigServer) Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name := strings.TrimSpace(stringField(in, "name"))
	if name == "" {
		return nil, s.fail(ctx, types.NewValidationError("name is required"))
	}
	tags, err := tagsField(in, "tags")
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	entry, err := s.configs.Resolve(ctx, auth.IdentityFromContext(ctx), name, tags)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	out := &structpb.Struct{}
	if err := toProto(entry, out); err != nil {
		return nil, s.fail(ctx, err)
	}
	return out, nil
}

func (s *grpcConfigServer) Query(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	names, err := stringListField(in, "names")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	assocs, err := stringListField(in, "associations")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	isActive, err := boolTextField(in, "isActive")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	q, err := types.ParseConfigQuery(names, assocs, isActive)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	entries, err := s.configs.Query(ctx, auth.IdentityFromContext(ctx), q)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	out := &structpb.ListValue{}
	if err := toProto(entries, out); err != nil {
		return nil, s.fail(ctx, err)
	}
	return out, nil
}

// fail logs server-side failures and converts err to a status error.
func (s *grpcConfigServer) fail(ctx context.Context, err error) error {
	switch types.Category(err) {
	case types.CategoryUnavailable, types.CategoryMisconfigured, types.CategoryInternal:
		s.logger.WithContext(ctx).Error("gRPC request failed", log.Err(err))
	}
	var ce *types.ConflictError
	if errors.As(err, &ce) && len(ce.EntryIDs) > 0 {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(EntryIDsTrailer, strings.Join(ce.EntryIDs, ",")))
	}
	return StatusFromError(err)
}

// StatusFromError maps a typed error to a gRPC status error. Store and internal failures
// are masked.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch types.Category(err) {
	case types.CategoryValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case types.CategoryUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case types.CategoryForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case types.CategoryNotFound:
		return status.Error(codes.NotFound, err.Error())
	case types.CategoryConflict:
		var ce *types.ConflictError
		if errors.As(err, &ce) && ce.Kind == types.ConflictResolution {
			return status.Error(codes.Aborted, err.Error())
		}
		return status.Error(codes.AlreadyExists, err.Error())
	case types.CategoryUnavailable:
		return status.Error(codes.Unavailable, "store unavailable")
	case types.CategoryMisconfigured:
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// authenticateMD reads an optional bearer token from the incoming metadata. A missing
// header is an anonymous caller; a present but invalid one is rejected.
func authenticateMD(ctx context.Context, tokens *service.TokenService, logger log.Logger) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if len(md.Get("authorization")) == 0 {
		return ctx, nil
	}
	token, err := grpc_auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return nil, err
	}
	id, err := tokens.Identify(ctx, token)
	if err != nil {
		logger.Warn("Rejected bearer token", log.Err(err))
		return nil, StatusFromError(err)
	}
	if id == nil {
		return ctx, nil
	}
	ctx = auth.WithIdentity(ctx, id)
	return log.ContextWithClient(ctx, id.Name), nil
}

// logUnaryInterceptor logs each call and records it in the request metrics.
func logUnaryInterceptor(logger log.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger.Debug("gRPC request", log.Str("method", info.FullMethod))

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)
		m.ObserveRequest("grpc", "unary", info.FullMethod, code.String(), duration)
		if err != nil {
			logger.Info("gRPC error",
				log.Str("method", info.FullMethod),
				log.Str("code", code.String()),
				log.Err(err),
				log.Duration("duration", duration))
		} else {
			logger.Debug("gRPC response",
				log.Str("method", info.FullMethod),
				log.Duration("duration", duration))
		}
		return resp, err
	}
}

// toProto converts v to a Struct or ListValue through its JSON form.
func toProto(v interface{}, out proto.Message) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return protojson.Unmarshal(b, out)
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func timestampField(in *structpb.Struct, key string) (int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, types.NewValidationError("%s is required", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, types.NewValidationError("%s must be an integer number of epoch seconds", key)
		}
		return int64(f), nil
	case *structpb.Value_StringValue:
		return service.ParseTimestamp(k.StringValue)
	default:
		return 0, types.NewValidationError("%s must be a number", key)
	}
}

func tagsField(in *structpb.Struct, key string) ([]types.Tag, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return nil, nil
	}
	st := v.GetStructValue()
	if st == nil {
		return nil, types.NewValidationError("%s must be an object of type to value", key)
	}
	tags := make([]types.Tag, 0, len(st.GetFields()))
	for typ, tv := range st.GetFields() {
		sv, ok := tv.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, types.NewValidationError("tag %q must have a string value", typ)
		}
		tags = append(tags, types.Tag{Type: typ, Value: sv.StringValue})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Type < tags[j].Type })
	return tags, nil
}

func stringListField(in *structpb.Struct, key string) ([]string, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return []string{k.StringValue}, nil
	case *structpb.Value_ListValue:
		out := make([]string, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			sv, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, types.NewValidationError("%s must only contain strings", key)
			}
			out = append(out, sv.StringValue)
		}
		return out, nil
	default:
		return nil, types.NewValidationError("%s must be a list of strings", key)
	}
}

func boolTextField(in *structpb.Struct, key string) (string, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue), nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", types.NewValidationError("%s must be a boolean", key)
	}
}
