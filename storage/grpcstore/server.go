package grpcstore

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pqdag/storage"
)

// Server exposes a storage.Store over the TxStore service.
type Server struct {
	UnimplementedTxStoreServer
	Store storage.Store
	Log   zerolog.Logger

	// PageSize caps the keys returned per Keys call. Zero means
	// DefaultPageSize.
	PageSize int
}

// DefaultPageSize keeps a Keys reply well under the default 4 MiB message
// limit.
const DefaultPageSize = 4096

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	b := in.GetValue()
	expected, err := storage.Sum(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(ctx, b)
	if err != nil {
		s.Log.Error().Err(err).Str("tx_id", expected.String()).Msg("Put failed")
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.Log.Debug().Str("tx_id", id.String()).Int("size", len(b)).Msg("Transaction stored")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := storage.Check(id, b); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	ok, err := s.Store.Has(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) Keys(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	ids, err := s.Store.Keys(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	after := in.GetValue()
	start := sort.Search(len(ids), func(i int) bool { return ids[i].String() > after })
	size := s.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	end := min(start+size, len(ids))

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, end-start)}
	for _, id := range ids[start:end] {
		out.Values = append(out.Values, structpb.NewStringValue(id.String()))
	}
	return out, nil
}

func decodeCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}
