package downstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/vietddude/relay/internal/core/domain"
)

// jsonCodec lets Invoke carry plain JSON payloads so the relay does not need
// generated stubs for every downstream service.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCCaller invokes a configured full method (e.g. "/orders.Orders/Apply")
// with the envelope as a JSON message.
type GRPCCaller struct {
	name   string
	method string
	conn   *grpc.ClientConn
}

// NewGRPCCaller dials endpoint and returns a caller for the named service.
// TLS is used for https:// endpoints and :443 targets.
func NewGRPCCaller(ctx context.Context, name, endpoint, method string) (*GRPCCaller, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}
	opts = append(opts, grpc.WithBlock())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", target, err)
	}

	return &GRPCCaller{name: name, method: method, conn: conn}, nil
}

// Name implements Caller.
func (c *GRPCCaller) Name() string { return c.name }

// Call implements Caller.
func (c *GRPCCaller) Call(ctx context.Context, env *domain.Envelope) error {
	var resp json.RawMessage
	err := c.conn.Invoke(ctx, c.method, env, &resp, grpc.CallContentSubtype("json"))
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return domain.NewTransportError(c.name+": invoke failed", err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.Unimplemented,
		codes.FailedPrecondition:
		return domain.NewIntegrationError(c.name, st.Message(), false, err)
	default:
		// Unavailable, DeadlineExceeded, ResourceExhausted, Internal, ...
		return domain.NewIntegrationError(c.name, st.Message(), true, err)
	}
}

// Close releases the underlying connection.
func (c *GRPCCaller) Close() error {
	return c.conn.Close()
}
