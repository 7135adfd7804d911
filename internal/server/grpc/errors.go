package grpc

import (
	"github.com/jonathandlab/coyn/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a service error to a gRPC status. Credential failures share
// one message so clients can not tell which check failed.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if common.IsCredentialRejection(err) {
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
	switch common.KindOf(err) {
	case common.KindNotFound:
		return status.Error(codes.NotFound, "not found")
	case common.KindPersistence:
		return status.Error(codes.Unavailable, "temporarily unavailable")
	case common.KindConflict:
		return status.Error(codes.AlreadyExists, "already exists")
	case common.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
