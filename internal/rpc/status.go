package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aetheric-oss/svc-scheduler/internal/errs"
)

// toStatus maps the internal errs.Error taxonomy (spec §7) to a gRPC
// status, the same way
// controlplane/controller/internal/controller/server.go maps domain errors
// to status.Error at its RPC edge. Errors that aren't *errs.Error (e.g. a
// bare context.Canceled) fall back to codes.Unknown.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var se *errs.Error
	if !errors.As(err, &se) {
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(codeFor(se.Code), se.Error())
}

func codeFor(c errs.Code) codes.Code {
	switch c {
	case errs.InvalidArgument:
		return codes.InvalidArgument
	case errs.NotFound:
		return codes.NotFound
	case errs.ScheduleConflict:
		return codes.FailedPrecondition
	case errs.Expired:
		return codes.DeadlineExceeded
	case errs.ClientCancelled:
		return codes.Cancelled
	case errs.PriorityChanged:
		return codes.Aborted
	case errs.GISUnavailable, errs.RouteUnavailable:
		return codes.Unavailable
	case errs.Storage:
		return codes.Unavailable
	case errs.CalendarParse:
		return codes.InvalidArgument
	case errs.Internal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}
