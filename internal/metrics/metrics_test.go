package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	okBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("groq", ModeSync, StatusOK))
	errBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("groq", ModeSync, StatusError))

	ObserveRequest("groq", ModeSync, time.Now(), nil)
	ObserveRequest("groq", ModeSync, time.Now(), errors.New("boom"))

	require.Equal(t, okBefore+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("groq", ModeSync, StatusOK)))
	require.Equal(t, errBefore+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("groq", ModeSync, StatusError)))
}

func TestObserveFragment(t *testing.T) {
	before := testutil.ToFloat64(StreamFragmentsTotal.WithLabelValues("gemini", "true"))
	ObserveFragment("gemini", true)
	require.Equal(t, before+1, testutil.ToFloat64(StreamFragmentsTotal.WithLabelValues("gemini", "true")))
}

func TestAttachmentFailed(t *testing.T) {
	before := testutil.ToFloat64(AttachmentFailuresTotal.WithLabelValues(StageExtract))
	AttachmentFailed(StageExtract)
	require.Equal(t, before+1, testutil.ToFloat64(AttachmentFailuresTotal.WithLabelValues(StageExtract)))
}
