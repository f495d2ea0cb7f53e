package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithTimeoutAbandonsSlowChecker(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := GatewayFunc(func(ctx context.Context, req Request) (Verdict, error) {
		<-release
		return Verdict{Passed: true}, nil
	})

	gateway := WithTimeout(slow, 20*time.Millisecond)
	_, err := gateway.Check(context.Background(), Request{TaskID: 1})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrGateway)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var gatewayErr *GatewayError
	require.True(t, errors.As(err, &gatewayErr))
	require.Equal(t, "timeout", gatewayErr.Driver)
}

func TestWithTimeoutPassesVerdictThrough(t *testing.T) {
	fast := GatewayFunc(func(ctx context.Context, req Request) (Verdict, error) {
		return Verdict{Passed: false, Detail: req.Code}, nil
	})

	verdict, err := WithTimeout(fast, time.Second).Check(context.Background(), Request{Code: "x"})
	require.NoError(t, err)
	require.False(t, verdict.Passed)
	require.Equal(t, "x", verdict.Detail)
}

func TestDecodeVerdictRejectsMalformedPayloads(t *testing.T) {
	verdict, err := DecodeVerdict("test", []byte(`{"passed": true}`))
	require.NoError(t, err)
	require.True(t, verdict.Passed)

	verdict, err = DecodeVerdict("test", []byte(`{"passed": false, "detail": "wrong output on test 3"}`))
	require.NoError(t, err)
	require.Equal(t, "wrong output on test 3", verdict.Detail)

	verdict, err = DecodeVerdict("test", []byte(`{"passed": true, "detail": null}`))
	require.NoError(t, err)
	require.True(t, verdict.Passed)
	require.Empty(t, verdict.Detail)

	for _, payload := range []string{`{"detail": "missing"}`, `{"passed": "yes"}`, `{"passed": false, "detail": 3}`, `not json`, `[]`} {
		_, err := DecodeVerdict("test", []byte(payload))
		require.ErrorIs(t, err, ErrGateway, payload)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, closer, err := New(Options{Driver: "carrier-pigeon"}, zerologNop())
	require.ErrorIs(t, err, ErrUnknownDriver)
	require.NotNil(t, closer)
	require.NoError(t, closer())

	_, _, err = New(Options{Driver: DriverHTTP}, zerologNop())
	require.Error(t, err)
}

func TestWithTimeoutTurnsDriverPanicIntoError(t *testing.T) {
	broken := GatewayFunc(func(ctx context.Context, req Request) (Verdict, error) {
		panic("nil pointer in driver")
	})

	_, err := WithTimeout(broken, time.Second).Check(context.Background(), Request{})
	require.ErrorIs(t, err, ErrGateway)
	require.Contains(t, err.Error(), "nil pointer in driver")
}

func TestNewReturnsUnwrappedDriver(t *testing.T) {
	gateway, closer, err := New(Options{Driver: DriverHTTP, URL: "http://checker.local/check", Timeout: time.Second}, zerologNop())
	require.NoError(t, err)
	require.NoError(t, closer())

	_, ok := gateway.(*HTTPGateway)
	require.True(t, ok, "the worker applies the check timeout exactly once")
}
