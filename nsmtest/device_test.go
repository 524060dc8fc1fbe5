package nsmtest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veilware/nsm"
	"github.com/veilware/nsm/nsmtest"
	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

func TestZeroDeviceRejectsRequests(t *testing.T) {
	dev := &nsmtest.Device{}

	sess, err := nsm.OpenSession(dev.Options())
	require.NoError(t, err)
	defer sess.Close()

	res := sess.Send(&request.DescribeNSM{})

	require.Equal(t, response.InvalidOperation, res.Error)
	require.Equal(t, 1, dev.Calls())
}

func TestHandlerSeesDecodedRequest(t *testing.T) {
	var seen request.Request

	dev := &nsmtest.Device{
		Handler: func(req request.Request) response.Response {
			seen = req
			return response.Response{LockPCR: &response.LockPCR{}}
		},
	}

	sess, err := nsm.OpenSession(dev.Options())
	require.NoError(t, err)
	defer sess.Close()

	res := sess.Send(&request.LockPCR{Index: 7})

	require.Equal(t, &request.LockPCR{Index: 7}, seen)
	require.NotNil(t, res.LockPCR)
}
