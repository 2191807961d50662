package grpcstore

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/pqdag/storage"
)

// mapRPC turns a gRPC status back into the storage sentinel it encodes.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.Wrap(storage.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return errors.Wrap(storage.ErrInvalidCID, st.Message())
	case codes.DataLoss:
		return errors.Wrap(storage.ErrCIDMismatch, st.Message())
	case codes.AlreadyExists:
		return errors.Wrap(storage.ErrImmutable, st.Message())
	default:
		return errors.Wrap(err, "grpcstore: rpc")
	}
}

// mapErr turns a storage error into a gRPC status.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
