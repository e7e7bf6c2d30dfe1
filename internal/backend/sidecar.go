package backend

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
)

// Sidecar is a client for a local inference server. Requests use protobuf
// well-known types so no generated stubs are needed: audio travels as
// BytesValue, text comes back as StringValue, prompts as a Struct.
type Sidecar struct {
	conn *grpc.ClientConn
}

// NewSidecar dials addr. Extra options are appended after the defaults.
func NewSidecar(addr string, opts ...grpc.DialOption) (*Sidecar, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfig, "dial inference sidecar %s", addr)
	}
	return &Sidecar{conn: conn}, nil
}

// Close closes the gRPC connection.
func (s *Sidecar) Close() error {
	return s.conn.Close()
}

// Transcribe sends PCM audio and returns the recognized text.
func (s *Sidecar) Transcribe(ctx context.Context, a Audio) (string, error) {
	return s.invokeAudio(ctx, MethodTranscribe, a)
}

// IdentifySpeaker returns the sidecar's speaker id for the segment.
func (s *Sidecar) IdentifySpeaker(ctx context.Context, a Audio) (string, error) {
	return s.invokeAudio(ctx, MethodIdentifySpeaker, a)
}

func (s *Sidecar) invokeAudio(ctx context.Context, method string, a Audio) (string, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, SampleRateKey, strconv.Itoa(a.SampleRate))
	out := &wrapperspb.StringValue{}
	if err := s.conn.Invoke(ctx, method, wrapperspb.Bytes(a.PCM), out); err != nil {
		return "", apperrors.FromGRPCError(err)
	}
	return strings.TrimSpace(out.GetValue()), nil
}

// GenerateSummary sends the prompt roles as a Struct and reads "text" and
// "tokens_used" from the reply.
func (s *Sidecar) GenerateSummary(ctx context.Context, p Prompt) (Completion, error) {
	req, err := structpb.NewStruct(map[string]any{
		"system":    p.System,
		"assistant": p.Assistant,
		"user":      p.User,
	})
	if err != nil {
		return Completion{}, apperrors.Wrap(err, apperrors.CodeInternal, "encode prompt")
	}
	out := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, MethodGenerateSummary, req, out); err != nil {
		return Completion{}, apperrors.FromGRPCError(err)
	}
	fields := out.GetFields()
	return Completion{
		Text:       strings.TrimSpace(fields["text"].GetStringValue()),
		TokensUsed: int64(fields["tokens_used"].GetNumberValue()),
	}, nil
}
