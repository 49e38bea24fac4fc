package progress

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStatusCalculating(t *testing.T) {
	t.Parallel()

	status, err := DecodeStatus(Calculating, strings.NewReader(`{"calculated":5,"time":12345,"file":"x.txt"}`))
	require.NoError(t, err)
	require.Equal(t, Status{Count: 5, ElapsedMillis: 12345, File: "x.txt"}, status)
}

func TestDecodeStatusRecordingIgnoresFile(t *testing.T) {
	t.Parallel()

	status, err := DecodeStatus(Recording, strings.NewReader(`{"measurements":7,"time":1500.5,"file":"ignored"}`))
	require.NoError(t, err)
	require.Equal(t, Status{Count: 7, ElapsedMillis: 1500.5}, status)
}

func TestDecodeStatusFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		view View
		body string
		kind FailureKind
	}{
		{"malformed json", Calculating, `{"calculated":`, FailureDecode},
		{"null document", Calculating, `null`, FailureDecode},
		{"missing count", Calculating, `{"time":10,"file":"a"}`, FailureMissingField},
		{"null count", Recording, `{"measurements":null,"time":10}`, FailureMissingField},
		{"missing time", Recording, `{"measurements":3}`, FailureMissingField},
		{"count not a number", Recording, `{"measurements":"3","time":10}`, FailureDecode},
		{"fractional count", Recording, `{"measurements":3.5,"time":10}`, FailureDecode},
		{"negative count", Calculating, `{"calculated":-1,"time":10}`, FailureDecode},
		{"file not a string", Calculating, `{"calculated":1,"time":10,"file":42}`, FailureDecode},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeStatus(tc.view, strings.NewReader(tc.body))
			require.Error(t, err)
			var pollErr *PollError
			require.True(t, errors.As(err, &pollErr))
			require.Equal(t, tc.kind, pollErr.Kind)
			require.Equal(t, tc.kind, FailureKindOf(err))
		})
	}
}

func TestDecodeStatusMissingFileIsAllowed(t *testing.T) {
	t.Parallel()

	status, err := DecodeStatus(Calculating, strings.NewReader(`{"calculated":2,"time":10}`))
	require.NoError(t, err)
	require.Empty(t, status.File)
}

func TestFailureKindOfPlainError(t *testing.T) {
	t.Parallel()

	require.Empty(t, FailureKindOf(errors.New("boom")))
	require.Empty(t, FailureKindOf(nil))
}

func TestLookupView(t *testing.T) {
	t.Parallel()

	v, err := LookupView(" Recording ")
	require.NoError(t, err)
	require.Equal(t, Recording, v)

	v, err = LookupView("calculating")
	require.NoError(t, err)
	require.Equal(t, "calculations.json", v.Endpoint)

	_, err = LookupView("uploading")
	require.ErrorIs(t, err, ErrUnknownView)
}
