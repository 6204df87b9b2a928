// Package gateway exposes the lease service as HTTP/JSON next to the gRPC
// listener, plus the prometheus scrape endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/metrics"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// bodies larger than this are rejected
const maxBodyBytes = 1 << 20

type Server struct {
	httpServer *http.Server
	svc        api.LeaseServiceServer
	logger     hclog.Logger
}

func NewServer(httpAddr string, svc api.LeaseServiceServer, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{svc: svc, logger: logger}
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Post("/clock", s.setTime)
		r.Get("/accounts/{principal}", s.getAccount)

		r.Post("/leases", s.createLease)
		r.Get("/leases", s.listLeases)

		r.Route("/leases/{id}", func(r chi.Router) {
			r.Get("/", s.getLease)
			r.Get("/events", s.getEvents)
			r.Get("/door", s.openDoor)
			r.Post("/payments", s.makePayment)
			r.Post("/termination", s.notifyTermination)
			r.Post("/withdraw", s.leaseCall(s.svc.Withdraw))
			r.Post("/terminate", s.leaseCall(s.svc.Terminate))
			r.Post("/remainder", s.leaseCall(s.svc.WithdrawRemainder))
			r.Post("/tenant-state", s.leaseCall(s.svc.UpdateTenantState))
		})
	})

	return r
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP gateway: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.GatewayRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration", time.Since(began),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// body of the lease routes that only name a caller
type callerBody struct {
	Caller types.Principal `json:"caller"`
}

func leaseID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad lease id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, err.Error())
	}

	body := errorBody{Code: st.Code().String(), Message: st.Message()}
	var remote *api.RemoteError
	if errors.As(api.FromStatus(st.Err()), &remote) {
		body.Reason = remote.Reason
	}
	writeJSON(w, httpStatus(st.Code()), body)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: codes.InvalidArgument.String(), Message: err.Error()})
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) createLease(w http.ResponseWriter, r *http.Request) {
	var req api.CreateLeaseRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	resp, err := s.svc.CreateLease(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listLeases(w http.ResponseWriter, r *http.Request) {
	req := api.ListLeasesRequest{Principal: types.Principal(r.URL.Query().Get("principal"))}

	resp, err := s.svc.ListLeases(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getLease(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	resp, err := s.svc.GetLease(r.Context(), &api.GetLeaseRequest{LeaseID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	resp, err := s.svc.GetEvents(r.Context(), &api.GetEventsRequest{LeaseID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/leases/{id}/door?caller=
func (s *Server) openDoor(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	req := api.LeaseCallRequest{LeaseID: id, Caller: types.Principal(r.URL.Query().Get("caller"))}
	resp, err := s.svc.OpenDoor(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) makePayment(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	var req api.MakePaymentRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	req.LeaseID = id

	resp, err := s.svc.MakePayment(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) notifyTermination(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	var req api.NotifyTerminationRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	req.LeaseID = id

	resp, err := s.svc.NotifyTermination(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) leaseCall(op func(context.Context, *api.LeaseCallRequest) (*api.OperationResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := leaseID(r)
		if err != nil {
			badRequest(w, err)
			return
		}

		var body callerBody
		if err := decode(w, r, &body); err != nil {
			badRequest(w, err)
			return
		}

		resp, err := op(r.Context(), &api.LeaseCallRequest{LeaseID: id, Caller: body.Caller})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	req := api.GetAccountRequest{Principal: types.Principal(chi.URLParam(r, "principal"))}

	resp, err := s.svc.GetAccount(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	var req api.SetTimeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	resp, err := s.svc.SetTime(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.GetStatus(r.Context(), &api.GetStatusRequest{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
