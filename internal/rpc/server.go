package rpc

import (
	"io"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	// Registers gzip as a usable grpc.encoding.Compressor. deflate
	// and zstd are documented extension points, not wired: neither ships a
	// compressor in google.golang.org/grpc itself and the retrieved pack
	// carries no such dependency to ground one on.
	_ "google.golang.org/grpc/encoding/gzip"
)

// serviceDesc is the hand-written analogue of a protoc-generated
// grpc.ServiceDesc: one server-streaming method, StreamIds, registered
// under the fluxid-binary codec via content-subtype negotiation.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "fluxid.IdGenerator",
	HandlerType: (*idGeneratorServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamIds",
			Handler:       streamIdsHandler,
			ServerStreams: true,
		},
	},
}

type idGeneratorServer interface {
	StreamIds(*StreamIdsRequest, grpc.ServerStream) error
}

// Server adapts a *service.Handler onto the grpc server-streaming surface.
type Server struct {
	handler *service.Handler
	log     zerolog.Logger
}

func streamIdsHandler(srv any, stream grpc.ServerStream) error {
	req := new(StreamIdsRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(idGeneratorServer).StreamIds(req, stream)
}

// StreamIds implements idGeneratorServer: it validates and delegates to
// the service handler, then pumps chunks onto the grpc stream until it
// completes, translating RequestError kinds to grpc status codes.
func (s *Server) StreamIds(req *StreamIdsRequest, stream grpc.ServerStream) error {
	done := make(chan struct{})
	ctx := stream.Context()
	go func() {
		select {
		case <-ctx.Done():
			close(done)
		case <-done:
		}
	}()
	defer func() {
		select {
		case <-done:
		default:
			close(done)
		}
	}()

	// Each call gets its own correlation id so the request's chunks can be
	// traced through the logs of every worker that served it, independent
	// of whatever request-id metadata (or lack of it) the caller sent.
	reqID := uuid.New().String()
	log := s.log.With().Str("request_id", reqID).Uint64("count", req.Count).Logger()
	start := time.Now()
	log.Debug().Msg("stream request received")

	ch, err := s.handler.StreamIds(req.Count, done)
	if err != nil {
		log.Debug().Err(err).Msg("stream request rejected")
		return toStatus(err)
	}
	var sent int
	for chunk := range ch {
		if chunk.Err != nil {
			log.Debug().Err(chunk.Err).Dur("elapsed", time.Since(start)).Msg("stream ended with error")
			return toStatus(chunk.Err)
		}
		if err := stream.SendMsg(&IdChunk{PackedIDs: chunk.PackedIDs}); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		sent += len(chunk.PackedIDs)
	}
	log.Debug().Int("bytes_sent", sent).Dur("elapsed", time.Since(start)).Msg("stream completed")
	return nil
}

func toStatus(err error) error {
	re, ok := fluxid.AsRequestError(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch re.Kind {
	case fluxid.KindInvalidRequest:
		return status.Error(codes.InvalidArgument, re.Reason)
	case fluxid.KindRequestCancelled:
		return status.Error(codes.Canceled, "request cancelled")
	case fluxid.KindServiceShutdown:
		return status.Error(codes.Unavailable, "service shutting down")
	case fluxid.KindChannelError:
		return status.Error(codes.Internal, re.Context)
	case fluxid.KindGenerationFailed:
		return status.Error(codes.Internal, re.Error())
	default:
		return status.Error(codes.Internal, re.Error())
	}
}

// NewGRPCServer builds a *grpc.Server with the IdGenerator streaming
// service, a health service (SERVING until healthSrv.Shutdown is
// called), and reflection.
func NewGRPCServer(handler *service.Handler, log zerolog.Logger) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	fluxidSrv := &Server{handler: handler, log: log.With().Str("component", "rpc").Logger()}
	gs.RegisterService(&serviceDesc, fluxidSrv)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(gs, healthSrv)
	healthSrv.SetServingStatus("fluxid.IdGenerator", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(gs)
	return gs, healthSrv
}

// MarkNotServing flips the health service to NOT_SERVING, the first
// visible symptom of shutdown.
func MarkNotServing(h *health.Server) {
	h.SetServingStatus("fluxid.IdGenerator", healthpb.HealthCheckResponse_NOT_SERVING)
}
