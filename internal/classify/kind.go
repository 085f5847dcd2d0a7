package classify

import (
	"errors"

	"github.com/wefram/sysui/internal/api"
)

// Kind is the failure class of a request error.
type Kind int

const (
	// KindNone means there was no error.
	KindNone Kind = iota
	// KindNetwork means no response was received.
	KindNetwork
	// KindValidation is a 400 rejection of the request.
	KindValidation
	// KindUnauthorized is a 401: the credential is missing or no longer valid.
	KindUnauthorized
	// KindForbidden is a 403: the user lacks a required permission.
	KindForbidden
	// KindServer is any 5xx status.
	KindServer
	// KindOther covers remaining statuses and errors not produced by the
	// dispatcher.
	KindOther
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindServer:
		return "server"
	default:
		return "other"
	}
}

// Classify maps an error to its Kind. Errors that are not an
// *api.ResponseError are KindOther; a ResponseError without a response is
// KindNetwork.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var rerr *api.ResponseError
	if !errors.As(err, &rerr) {
		return KindOther
	}
	if rerr.Response == nil {
		return KindNetwork
	}

	switch status := rerr.Response.Status; {
	case status >= 500:
		return KindServer
	case status == 400:
		return KindValidation
	case status == 401:
		return KindUnauthorized
	case status == 403:
		return KindForbidden
	default:
		return KindOther
	}
}
