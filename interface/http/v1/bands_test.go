package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/sys0xFF/challange-passabola-sub002/command"
	"github.com/sys0xFF/challange-passabola-sub002/roster"
	"github.com/sys0xFF/challange-passabola-sub002/telemetry"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Aggregate(ctx context.Context, id broker.EntityID) (telemetry.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(telemetry.Result), args.Error(1)
}

type mockRoster struct {
	mock.Mock
}

func (m *mockRoster) List(ctx context.Context) (roster.Roster, error) {
	args := m.Called(ctx)
	return args.Get(0).(roster.Roster), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, id broker.EntityID, p broker.Payload) error {
	args := m.Called(ctx, id, p)
	return args.Error(0)
}

func assertNoCache(t *testing.T, rr *httptest.ResponseRecorder) {
	assert.Equal(t, "no-cache, no-store, must-revalidate, max-age=0", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, "0", rr.Header().Get("Expires"))
}

func serve(h http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	return rr
}

func strictOptions() Options {
	return Options{StrictIdentifiers: true}
}

func Test_bandController_getBand(t *testing.T) {
	t.Run("returns aggregated scores for resolved entity", func(t *testing.T) {
		ma := &mockAggregator{}
		defer ma.AssertExpectations(t)

		ma.On("Aggregate", mock.Anything, broker.EntityID("urn:ngsi-ld:Band:007")).Return(telemetry.Result{
			telemetry.ScoreX: broker.Payload(`{"type":"Number","value":4}`),
			telemetry.ScoreZ: broker.Payload(`{"type":"Number","value":9}`),
		}, nil)

		h := constructRouter(ma, nil, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands/7", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"scoreX":{"type":"Number","value":4},"scoreZ":{"type":"Number","value":9}}`, rr.Body.String())
		assertNoCache(t, rr)
	})

	t.Run("returns empty object when no scores could be read", func(t *testing.T) {
		ma := &mockAggregator{}
		defer ma.AssertExpectations(t)

		ma.On("Aggregate", mock.Anything, mock.Anything).Return(telemetry.Result{}, nil)

		h := constructRouter(ma, nil, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands/7", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{}`, rr.Body.String())
	})

	t.Run("returns generic 500 without detail on total failure", func(t *testing.T) {
		ma := &mockAggregator{}
		defer ma.AssertExpectations(t)

		ma.On("Aggregate", mock.Anything, mock.Anything).Return(telemetry.Result(nil), fmt.Errorf("%w: dial tcp 10.0.0.1:1026: connection refused", telemetry.ErrAggregationFailed))

		h := constructRouter(ma, nil, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands/7", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection refused")
		assertNoCache(t, rr)
	})

	t.Run("rejects non numeric identifiers in strict mode", func(t *testing.T) {
		ma := &mockAggregator{}
		defer ma.AssertExpectations(t)

		h := constructRouter(ma, nil, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands/abc", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assertNoCache(t, rr)
	})

	t.Run("passes non numeric identifiers through when not strict", func(t *testing.T) {
		ma := &mockAggregator{}
		defer ma.AssertExpectations(t)

		ma.On("Aggregate", mock.Anything, broker.EntityID("urn:ngsi-ld:Band:abc")).Return(telemetry.Result{}, nil)

		h := constructRouter(ma, nil, nil, Options{}, logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands/abc", "")

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func Test_bandController_updateBand(t *testing.T) {
	t.Run("forwards command and acknowledges success", func(t *testing.T) {
		md := &mockDispatcher{}
		defer md.AssertExpectations(t)

		md.On("Dispatch", mock.Anything, broker.EntityID("urn:ngsi-ld:Band:012"), broker.Payload(`{"led":{"value":"red"}}`)).Return(nil)

		h := constructRouter(nil, nil, md, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodPatch, "/bands/12", `{"led":{"value":"red"}}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		assertNoCache(t, rr)
	})

	t.Run("rejects malformed json before dispatching", func(t *testing.T) {
		md := &mockDispatcher{}
		defer md.AssertExpectations(t)

		h := constructRouter(nil, nil, md, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodPatch, "/bands/12", `{"led":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects empty body before dispatching", func(t *testing.T) {
		md := &mockDispatcher{}
		defer md.AssertExpectations(t)

		h := constructRouter(nil, nil, md, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodPatch, "/bands/12", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("echoes broker status on rejection", func(t *testing.T) {
		md := &mockDispatcher{}
		defer md.AssertExpectations(t)

		md.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(&command.Rejection{Status: http.StatusNotFound, Message: "Broker rejected command with status 404."})

		h := constructRouter(nil, nil, md, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodPatch, "/bands/12", `{}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)

		resp := commandResponse{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Message, "404")
	})

	t.Run("returns generic 500 on transport failure", func(t *testing.T) {
		md := &mockDispatcher{}
		defer md.AssertExpectations(t)

		md.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(&broker.Failure{Kind: broker.Transport, Cause: assert.AnError})

		h := constructRouter(nil, nil, md, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodPatch, "/bands/12", `{}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
	})
}

func Test_bandController_listBands(t *testing.T) {
	t.Run("returns roster", func(t *testing.T) {
		mr := &mockRoster{}
		defer mr.AssertExpectations(t)

		mr.On("List", mock.Anything).Return(roster.Roster{
			Count:   1,
			Devices: []roster.Device{{DeviceID: "band001", Raw: broker.Payload(`{"device_id":"band001"}`)}},
		}, nil)

		h := constructRouter(nil, mr, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"count":1,"devices":[{"device_id":"band001"}]}`, rr.Body.String())
		assertNoCache(t, rr)
	})

	t.Run("propagates broker status on rejection", func(t *testing.T) {
		mr := &mockRoster{}
		defer mr.AssertExpectations(t)

		mr.On("List", mock.Anything).Return(roster.Roster{}, &broker.Failure{Kind: broker.Rejected, Status: http.StatusForbidden})

		h := constructRouter(nil, mr, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands", "")

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("returns generic 500 when broker is unreachable", func(t *testing.T) {
		mr := &mockRoster{}
		defer mr.AssertExpectations(t)

		mr.On("List", mock.Anything).Return(roster.Roster{}, &broker.Failure{Kind: broker.Transport, Cause: assert.AnError})

		h := constructRouter(nil, mr, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/bands", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestConstructRouter(t *testing.T) {
	t.Run("serves band with only some scores populated in the broker", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v2/entities/urn:ngsi-ld:Band:007/attrs/scoreY" {
				w.Write([]byte(`{"type":"Number","value":31,"metadata":{}}`))
				return
			}

			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"NotFound","description":"The entity does not have such an attribute"}`))
		}))
		defer server.Close()

		l := logwrap.New(discard.Discard())
		c := broker.New(broker.Config{OrionURL: server.URL, IoTAgentURL: server.URL, Service: "passabola", ServicePath: "/"})

		h := ConstructRouter(
			&telemetry.Aggregator{Reader: c, Logger: l},
			&roster.Service{Lister: c, Logger: l},
			&command.Dispatcher{Updater: c, Logger: l},
			strictOptions(),
			l,
		)

		rr := serve(h, http.MethodGet, "/bands/7", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"scoreY":{"type":"Number","value":31,"metadata":{}}}`, rr.Body.String())
		assertNoCache(t, rr)
	})

	t.Run("sets no cache headers on unmatched routes", func(t *testing.T) {
		h := constructRouter(nil, nil, nil, strictOptions(), logwrap.New(discard.Discard()))
		rr := serve(h, http.MethodGet, "/unknown", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assertNoCache(t, rr)
	})
}

func Test_requestLogging(t *testing.T) {
	t.Run("recovers from panics with a generic 500", func(t *testing.T) {
		r := mux.NewRouter()
		r.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("internal detail")
		})

		h := noCache(requestLogging(logwrap.New(discard.Discard()), r))
		rr := serve(h, http.MethodGet, "/panic", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "internal detail")
		assertNoCache(t, rr)
	})

	t.Run("preserves caller request id", func(t *testing.T) {
		h := requestLogging(logwrap.New(discard.Discard()), http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc123")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, "abc123", rr.Header().Get(RequestIDHeader))
	})

	t.Run("generates request id if absent", func(t *testing.T) {
		h := requestLogging(logwrap.New(discard.Discard()), http.NotFoundHandler())
		rr := serve(h, http.MethodGet, "/", "")

		assert.Len(t, rr.Header().Get(RequestIDHeader), 36)
	})
}
