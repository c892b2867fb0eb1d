package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	qrcode "github.com/skip2/go-qrcode"

	"epicnft/internal/config"
	"epicnft/internal/connector"
	"epicnft/internal/mint"
	"epicnft/internal/wallet"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type ConnectionWorkflow interface {
	ConnectWallet(ctx context.Context) wallet.Result
	ULogin(ctx context.Context, code, state string) wallet.Result
	State() wallet.State
	Reset()
	SubscribeNetwork(ch chan<- wallet.NetworkChanged) event.Subscription
}

type MintWorkflow interface {
	AskContractToMintNft(ctx context.Context) mint.Outcome
}

// LoginStarter hands out the identity service authorization URL.
type LoginStarter interface {
	LoginURL(ctx context.Context) (string, error)
}

// Deps are the collaborators the page drives. Health may be nil when no
// injected provider is configured.
type Deps struct {
	Wallet ConnectionWorkflow
	Minter MintWorkflow
	Login  LoginStarter
	Board  *Board
	QRCode bool
	Health func(context.Context) error
	Logger log.Logger
}

type Server struct {
	cfg        *config.AppConfig
	deps       Deps
	log        log.Logger
	httpServer *http.Server
	metrics    *metricsRegistry

	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Int64

	networkSub  event.Subscription
	networkDone chan struct{}
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if deps.Board == nil {
		deps.Board = NewBoard()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Root()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		deps:        deps,
		log:         logger,
		metrics:     newMetricsRegistry(),
		baseCtx:     ctx,
		cancel:      cancel,
		networkDone: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Group(func(r chi.Router) {
		r.Use(sameOrigin)
		r.Post("/connect", s.handleConnect)
		r.Post("/login", s.handleLogin)
		r.Post("/mint", s.handleMint)
	})
	r.Get("/collection", s.handleCollection)
	r.Get("/walletconnect/qr.png", s.handleQRCode)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}

	events := make(chan wallet.NetworkChanged, 1)
	s.networkSub = deps.Wallet.SubscribeNetwork(events)
	go s.applyNetworkPolicy(events)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops serving, cancels running workflows and waits for them within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.networkSub.Unsubscribe()
	<-s.networkDone

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("Workflows still running at shutdown", "count", s.inflight.Load())
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// applyNetworkPolicy reloads the page state whenever the wallet switches chains.
func (s *Server) applyNetworkPolicy(events <-chan wallet.NetworkChanged) {
	defer close(s.networkDone)
	for {
		select {
		case ev := <-events:
			s.log.Warn("Network changed, resetting connection", "old", ev.Old, "new", ev.New)
			s.deps.Wallet.Reset()
			s.metrics.incNetworkChange()
		case <-s.networkSub.Err():
			return
		}
	}
}

// launch runs fn in the background. Requests never wait for a workflow.
func (s *Server) launch(fn func(ctx context.Context)) {
	s.wg.Add(1)
	s.metrics.setInflight(s.inflight.Add(1))
	go func() {
		defer s.wg.Done()
		defer func() { s.metrics.setInflight(s.inflight.Add(-1)) }()
		fn(s.baseCtx)
	}()
}

type pageData struct {
	State   wallet.State
	Alerts  []string
	Pending bool
	Pairing string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("code") || q.Has("error") {
		s.handleLoginCallback(w, r)
		return
	}

	data := pageData{
		State:   s.deps.Wallet.State(),
		Alerts:  s.deps.Board.drain(),
		Pending: s.inflight.Load() > 0,
	}
	if s.deps.QRCode {
		data.Pairing = s.deps.Board.Pairing()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Error("Render failed", "err", err)
	}
}

func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.log.Error("Identity login failed", "error", reason, "description", q.Get("error_description"))
		s.metrics.incConnect(string(connector.KindIdentity), "denied")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	s.launch(func(ctx context.Context) {
		res := s.deps.Wallet.ULogin(ctx, code, state)
		s.deps.Board.ClearPairing()
		s.metrics.incConnect(string(res.Connector), resultLabel(string(res.Reason)))
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.launch(func(ctx context.Context) {
		res := s.deps.Wallet.ConnectWallet(ctx)
		s.metrics.incConnect(string(res.Connector), resultLabel(string(res.Reason)))
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	target, err := s.deps.Login.LoginURL(r.Context())
	if err != nil {
		s.log.Error("Identity login failed", "err", err)
		s.metrics.incConnect(string(connector.KindIdentity), "activation")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.launch(func(ctx context.Context) {
		out := s.deps.Minter.AskContractToMintNft(ctx)
		s.metrics.incMint(resultLabel(string(out.Reason)))
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, s.cfg.Contract.CollectionURL(), http.StatusFound)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	uri := s.deps.Board.Pairing()
	if !s.deps.QRCode || uri == "" {
		http.NotFound(w, r)
		return
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to encode qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.deps.Health != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.Health(rpcCtx); err != nil {
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Error = "no injected provider"
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status    string      `json:"status"`
		ChainID   uint64      `json:"chain_id"`
		Contract  string      `json:"contract"`
		Provider  interface{} `json:"provider"`
		Connected bool        `json:"connected"`
		Inflight  int64       `json:"inflight"`
	}{
		Status:    status,
		ChainID:   s.cfg.Chain.ChainID,
		Contract:  s.cfg.Contract.Address,
		Provider:  rpcInfo,
		Connected: s.deps.Wallet.State().IsConnected,
		Inflight:  s.inflight.Load(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func resultLabel(reason string) string {
	if reason == "" {
		return "ok"
	}
	return reason
}
