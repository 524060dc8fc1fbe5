package nsm

import (
	"fmt"

	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

// ErrorGetRandomFailed is an error returned when a GetRandom request issued
// as part of a Read has failed with an error code or did not return any
// random bytes.
type ErrorGetRandomFailed struct {
	ErrorCode response.ErrorCode
}

// Error returns the formatted string.
func (err *ErrorGetRandomFailed) Error() string {
	if err.ErrorCode != response.Success {
		return fmt.Sprintf("GetRandom failed with error code %v", err.ErrorCode)
	}

	return "GetRandom response did not include random bytes"
}

// Read entropy from the NSM device. It always attempts to fill the whole
// slice, issuing as many GetRandom exchanges as that takes and blocking
// until it is done. It is safe to call from multiple goroutines that are
// Read-ing or Send-ing, but not Close-ing. If reading fails, it is probably
// an irrecoverable error.
func (sess *Session) Read(into []byte) (int, error) {
	for i := 0; i < len(into); {
		res := sess.Send(&request.GetRandom{})

		if res.Error != response.Success {
			return i, &ErrorGetRandomFailed{ErrorCode: res.Error}
		}

		if res.GetRandom == nil || len(res.GetRandom.Random) == 0 {
			return i, &ErrorGetRandomFailed{}
		}

		i += copy(into[i:], res.GetRandom.Random)
	}

	return len(into), nil
}
