package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"foxylend/core/events"
	"foxylend/crypto"
	"foxylend/native/lending"
	"foxylend/observability"
	telemetry "foxylend/observability/otel"
	"foxylend/services/lending/outbox"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	moduleName      = "lending"
)

// Config configures the HTTP surface.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
}

// JobLister exposes the transfer outbox to operators.
type JobLister interface {
	List(ctx context.Context, status outbox.JobStatus, limit int) ([]outbox.Job, error)
}

// Server exposes the lending engine over JSON/HTTP.
type Server struct {
	engine  *lending.Engine
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	stream  *events.Broadcaster
	jobs    JobLister
	metrics *observability.LendingMetricsRegistry
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBroadcaster enables the /v1/events stream.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(s *Server) { s.stream = b }
}

// WithJobs enables the outbox listing for admins.
func WithJobs(jobs JobLister) Option {
	return func(s *Server) { s.jobs = jobs }
}

func WithMetrics(m *observability.LendingMetricsRegistry) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides the clock that stamps every operation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the HTTP server around engine.
func New(engine *lending.Engine, cfg Config, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  slog.Default(),
		limiter: NewRateLimiter(cfg.RateLimit),
		tracer:  telemetry.Tracer("lending-api"),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.auth = NewAuthenticator(cfg.Auth, s.logger)
	return s
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/params", s.getParams)
		r.Get("/stats", s.getStats)
		r.Get("/offers", s.listOffers)
		r.Get("/offers/range", s.offerRange)
		r.Get("/offers/by-price", s.offersByPrice)
		r.Get("/offers/{id}", s.getOffer)
		r.Get("/offers/{id}/quote", s.getQuote)
		r.Get("/owners/{address}/offers", s.offersByOwner)
		r.Get("/borrowers/{address}/offers", s.offersByBorrower)
		r.Get("/collections", s.listCollections)
		r.Get("/collections/{id}", s.getCollection)
		r.Get("/events", s.streamEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware(moduleName))
			r.Post("/offers", s.lend)
			r.Post("/offers/{id}/cancel", s.cancelOffer)
			r.Post("/offers/{id}/borrow", s.borrow)
			r.Post("/offers/{id}/repay", s.repay)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/collections", s.upsertCollection)
				r.Post("/collections/{id}/floor-price", s.updateFloorPrice)
				r.Post("/admin", s.updateAdmin)
				r.Post("/interest-split", s.updateInterestSplit)
				r.Get("/outbox", s.listJobs)
			})
		})
	})
	return otelhttp.NewHandler(r, "lending-api")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes the websocket upgrade through to the underlying writer.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.ModuleMetrics().Observe(moduleName, r.Method+" "+route, recorder.status, time.Since(start))
	})
}

// execute runs msg for the authenticated caller and writes the result.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, msg lending.Msg, funds []lending.Coin) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required", Code: "unauthenticated"})
		return
	}
	action := msg.Action()
	_, span := s.tracer.Start(r.Context(), "lending."+action, trace.WithAttributes(
		attribute.String("lending.action", action),
		attribute.String("lending.caller", caller.String()),
	))
	defer span.End()

	start := time.Now()
	env := lending.Env{Caller: caller, Now: uint64(s.now().Unix()), Funds: funds}
	res, err := s.engine.Dispatch(env, msg)
	if err != nil {
		s.metrics.ObserveOperation(action, "rejected", time.Since(start))
		status := writeError(w, err)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("lending operation failed",
				slog.String("action", action),
				slog.String("caller", caller.String()),
				slog.String("error", err.Error()))
		}
		return
	}
	s.metrics.ObserveOperation(action, string(res.Outcome), time.Since(start))
	span.SetAttributes(
		attribute.String("lending.outcome", string(res.Outcome)),
		attribute.Int("lending.offer_id", int(res.OfferID)),
	)
	s.logger.Info("lending operation applied",
		slog.String("action", action),
		slog.String("outcome", string(res.Outcome)),
		slog.String("caller", caller.String()),
		slog.Int("offer_id", int(res.OfferID)))
	s.refreshGauges()
	writeJSON(w, http.StatusOK, toResultView(res))
}

func (s *Server) refreshGauges() {
	if s.metrics == nil {
		return
	}
	stats, err := s.engine.Stats()
	if err != nil {
		s.logger.Warn("lending stats unavailable", slog.String("error", err.Error()))
		return
	}
	s.metrics.SetOfferCounts(stats.Open, stats.Active)
}

func pathID(r *http.Request, key string) (uint16, error) {
	return parseID(chi.URLParam(r, key))
}

func (s *Server) lend(w http.ResponseWriter, r *http.Request) {
	var req LendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	funds, err := parseFunds(req.Funds)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgLend{Amount: amount, CollectionID: req.CollectionID}, funds)
}

// decodeOptionalFunds reads a FundsRequest when a body is present. An empty
// body, chunked or not, attaches no funds.
func decodeOptionalFunds(r *http.Request) ([]lending.Coin, error) {
	if r.ContentLength == 0 || r.Body == nil {
		return nil, nil
	}
	var req FundsRequest
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return parseFunds(req.Funds)
}

func (s *Server) cancelOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgCancelOffer{OfferID: id}, nil)
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req BorrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	funds, err := parseFunds(req.Funds)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgBorrow{OfferID: id, TokenID: req.TokenID}, funds)
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	funds, err := decodeOptionalFunds(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgRepay{OfferID: id}, funds)
}

func (s *Server) upsertCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	floor, err := parseAmount("floor_price", req.FloorPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgAddCollection{Collection: lending.Collection{
		ID:         req.ID,
		Name:       strings.TrimSpace(req.Name),
		FloorPrice: floor,
		APY:        req.APY,
		MaxTime:    req.MaxTime,
		Contract:   contract,
	}}, nil)
}

func (s *Server) updateFloorPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req FloorPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("floor_price", req.FloorPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgUpdateFloorPrice{CollectionID: id, FloorPrice: price}, nil)
}

func (s *Server) updateAdmin(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	admin, err := parseAddress("admin", req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgUpdateAdmin{Admin: admin}, nil)
}

func (s *Server) updateInterestSplit(w http.ResponseWriter, r *http.Request) {
	var req InterestSplitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, lending.MsgUpdateInterest{InterestSplit: req.InterestSplit}, nil)
}

func (s *Server) getParams(w http.ResponseWriter, _ *http.Request) {
	params, err := s.engine.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParamsView(params))
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.SetOfferCounts(stats.Open, stats.Active)
	writeJSON(w, http.StatusOK, StatsView{Open: stats.Open, Active: stats.Active})
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := s.engine.Offer(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(offer))
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := s.engine.RepaymentQuote(id, uint64(s.now().Unix()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteView(quote))
}

func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := s.engine.Offers(page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferViews(offers))
}

func (s *Server) offerRange(w http.ResponseWriter, r *http.Request) {
	start, err := parseID(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	stop, err := parseID(r.URL.Query().Get("stop"))
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := s.engine.OfferRange(start, stop)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferViews(offers))
}

func (s *Server) offersByPrice(w http.ResponseWriter, r *http.Request) {
	threshold, err := parseAmount("threshold", r.URL.Query().Get("threshold"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	order := lending.ParseSortOrder(r.URL.Query().Get("order"))
	offers, err := s.engine.OffersByPrice(threshold, order, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferViews(offers))
}

func (s *Server) offersByOwner(w http.ResponseWriter, r *http.Request) {
	s.offersByAddress(w, r, s.engine.OffersByOwner)
}

func (s *Server) offersByBorrower(w http.ResponseWriter, r *http.Request) {
	s.offersByAddress(w, r, s.engine.OffersByBorrower)
}

func (s *Server) offersByAddress(w http.ResponseWriter, r *http.Request, query func(addr crypto.Address, page lending.Page) ([]*lending.Offer, error)) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := query(addr, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferViews(offers))
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	collections, err := s.engine.Collections(page)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]CollectionView, 0, len(collections))
	for _, c := range collections {
		out = append(out, toCollectionView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	collection, err := s.engine.Collection(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionView(collection))
}

// listJobs is restricted to the admin because job rows reveal every
// participant's pending transfers.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "outbox not configured", Code: "not_found"})
		return
	}
	caller, _ := CallerFromContext(r.Context())
	params, err := s.engine.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	if !caller.Equal(params.Admin) {
		writeError(w, lending.ErrNotAdmin)
		return
	}
	limit, err := queryUint(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	jobs, err := s.jobs.List(r.Context(), outbox.JobStatus(strings.TrimSpace(r.URL.Query().Get("status"))), int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, JobView{
			ID:        job.ID.String(),
			BatchID:   job.BatchID.String(),
			Position:  job.Position,
			Action:    job.Action,
			Kind:      job.Kind,
			OfferID:   job.OfferID,
			To:        job.ToAddress,
			Amount:    job.Amount,
			TokenID:   job.TokenID,
			Status:    string(job.Status),
			Attempts:  job.Attempts,
			LastError: job.LastError,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
