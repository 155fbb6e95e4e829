package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/mempool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/orderbook"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
	"github.com/uhyunpark/hypercredit/pkg/app/dex"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
	"github.com/uhyunpark/hypercredit/pkg/storage"
)

// maxTxBytes bounds a submitted transaction body
const maxTxBytes = 1 << 20

// Server handles REST API and WebSocket connections
type Server struct {
	app     *dex.App
	metrics *metrics.Metrics
	router  *mux.Router
	hub     *Hub
	log     *zap.Logger
}

// NewServer creates a new API server; m may be nil, which disables /metrics
func NewServer(app *dex.App, m *metrics.Metrics, log *zap.Logger) *Server {
	s := &Server{
		app:     app,
		metrics: m,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain endpoints
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")
	api.HandleFunc("/blocks/{height:[0-9]+}/events", s.handleGetBlockEvents).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	// Market endpoints
	api.HandleFunc("/assets", s.handleGetAssets).Methods("GET")
	api.HandleFunc("/books/{sell}/{receive}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/pools", s.handleGetPools).Methods("GET")
	api.HandleFunc("/credit-pools", s.handleGetCreditPools).Methods("GET")
	api.HandleFunc("/stablecoins/{symbol}", s.handleGetStablecoin).Methods("GET")

	// Transaction submission
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler is the router behind CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("api server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	hash := s.app.AppHash()
	respondJSON(w, ChainStatus{
		Height:      s.app.Height(),
		AppHash:     fmt.Sprintf("0x%x", hash[:]),
		MempoolSize: s.app.Pending(),
		WSDropped:   s.hub.Dropped(),
	})
}

func (s *Server) handleGetBlockEvents(w http.ResponseWriter, r *http.Request) {
	store := s.app.Store()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, "no block store", "node runs in memory")
		return
	}
	height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err.Error())
		return
	}
	events, err := store.Events(height)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read events", err.Error())
		return
	}
	if events == nil {
		events = []storage.StoredEvent{}
	}
	respondJSON(w, events)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	var balances []account.Balance
	s.app.View(func(st *state.State) { balances = st.Ledger.BalancesOf(addr) })

	out := make([]BalanceInfo, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceInfo(b))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	out := []OrderInfo{}
	s.app.View(func(st *state.State) {
		st.Book.ScanLimits(func(o orderbook.LimitOrder) bool {
			if o.Owner == addr {
				out = append(out, OrderInfo{
					ID:         o.ID,
					OrderID:    o.OrderID,
					ForSale:    o.AmountForSale(),
					ToReceive:  o.AmountToReceive(),
					Price:      o.SellPrice.String(),
					Expiration: o.Expiration,
				})
			}
			return true
		})
	})
	respondJSON(w, out)
}

func (s *Server) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	var out any
	s.app.View(func(st *state.State) { out = st.Registry.List() })
	respondJSON(w, out)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid depth", d)
			return
		}
		depth = n
	}
	respondJSON(w, s.book(asset.Symbol(vars["sell"]), asset.Symbol(vars["receive"]), depth))
}

func (s *Server) book(sell, receive asset.Symbol, depth int) BookSnapshot {
	snap := BookSnapshot{Sell: sell, Receive: receive}
	s.app.View(func(st *state.State) {
		snap.Levels = st.Book.Depth(sell, receive, depth)
		snap.Height = st.Props.HeadBlock
	})
	if snap.Levels == nil {
		snap.Levels = []orderbook.PriceLevel{}
	}
	return snap
}

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	var out any
	s.app.View(func(st *state.State) { out = st.Pools.LiquidityPools() })
	respondJSON(w, out)
}

func (s *Server) handleGetCreditPools(w http.ResponseWriter, r *http.Request) {
	var out any
	s.app.View(func(st *state.State) { out = st.Pools.CreditPools() })
	respondJSON(w, out)
}

func (s *Server) handleGetStablecoin(w http.ResponseWriter, r *http.Request) {
	symbol := asset.Symbol(mux.Vars(r)["symbol"])
	var (
		out any
		ok  bool
	)
	s.app.View(func(st *state.State) { out, ok = st.Registry.Stablecoin(symbol) })
	if !ok {
		respondError(w, http.StatusNotFound, "stablecoin not found", string(symbol))
		return
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	tx, err := transaction.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}
	if err := s.app.PushTx(body); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, mempool.ErrDuplicate) {
			status = http.StatusConflict
		}
		respondError(w, status, "transaction refused", err.Error())
		return
	}
	s.log.Debug("tx submitted", zap.String("type", string(tx.Type)), zap.String("sender", tx.Sender.Hex()), zap.Int("bytes", len(body)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitTxResponse{Status: "accepted", Type: string(tx.Type)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called after every block)
// ==============================

// BroadcastBlock publishes a finalized block and the books clients
// subscribed to
func (s *Server) BroadcastBlock(height int64, resp abci.ResponseFinalizeBlock) {
	rejected := 0
	for _, r := range resp.TxResults {
		if r.Code != 0 {
			rejected++
		}
	}
	s.hub.BroadcastToChannel(blocksChannel, BlockUpdate{
		Type:     "block",
		Height:   height,
		AppHash:  fmt.Sprintf("0x%x", resp.AppHash[:]),
		Txs:      len(resp.TxResults),
		Rejected: rejected,
		Events:   resp.Events,
	})
	for _, ch := range s.hub.Channels() {
		sell, receive, ok := parseBookChannel(ch)
		if !ok {
			continue
		}
		s.hub.BroadcastToChannel(ch, BookUpdate{Type: "book", BookSnapshot: s.book(sell, receive, 20)})
	}
}

// ==============================
// Helper Functions
// ==============================

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return common.Address{}, false
	}
	return common.HexToAddress(addressStr), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
