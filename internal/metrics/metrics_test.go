package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveCallMapsSuccessToOK(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveCall("LotteryGameSystem", "", time.Millisecond)
	recorder.ObserveCall("LotteryGameSystem", gameroot.KindPrecondition, time.Millisecond)
	recorder.ObserveCall("LotteryGameSystem", gameroot.KindPrecondition, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(recorder.calls.WithLabelValues("LotteryGameSystem", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(recorder.calls.WithLabelValues("LotteryGameSystem", "precondition")))
}

func TestHandleEventsCountsByName(t *testing.T) {
	recorder := NewRecorder()
	recorder.HandleEvents([]gameroot.Event{
		{Name: "LotteryTicketBuy"},
		{Name: "LotteryTicketBuy"},
		{Name: "Transfer"},
	})
	require.Equal(t, 2.0, testutil.ToFloat64(recorder.events.WithLabelValues("LotteryTicketBuy")))
	require.Equal(t, 1.0, testutil.ToFloat64(recorder.events.WithLabelValues("Transfer")))
}

func TestKeeperRuns(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveKeeperRun(2, nil)
	recorder.ObserveKeeperRun(0, errors.New("store unavailable"))

	require.Equal(t, 1.0, testutil.ToFloat64(recorder.keeperRuns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(recorder.keeperRuns.WithLabelValues("error")))
	require.Equal(t, 2.0, testutil.ToFloat64(recorder.keeperVerified))
}

func TestHandlerExposesRecordedSeries(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveRequest("GET", "/api/games/:id", 200, 3*time.Millisecond)
	recorder.ObserveRequest("GET", "", 404, time.Millisecond)

	response := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(response, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, response.Code)

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	text := string(body)
	require.True(t, strings.Contains(text, `happijack_http_requests_total{method="GET",route="/api/games/:id",status="200"} 1`))
	require.True(t, strings.Contains(text, `route="unmatched"`))
}
