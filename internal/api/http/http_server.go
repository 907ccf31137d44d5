package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/api/dto"
	"github.com/verdantx/carbon-exchange/internal/api/ws"
	"github.com/verdantx/carbon-exchange/internal/core"
	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/middleware"
	"github.com/verdantx/carbon-exchange/internal/session"
)

const basePath = "/api/v1"

type Server struct {
	engine   *core.Engine
	sessions *session.Manager
	hub      *ws.Hub
	log      *logrus.Logger
	router   *gin.Engine
}

func NewServer(engine *core.Engine, sessions *session.Manager, hub *ws.Hub, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		sessions: sessions,
		hub:      hub,
		log:      log,
		router:   router,
	}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Account(s.sessions))

	api := s.router.Group(basePath)

	rl := middleware.NewRateLimiter(100 * time.Millisecond)
	orders := api.Group("/orders")
	orders.Use(rl.Middleware())
	{
		orders.POST("", s.submitOrder)
		orders.POST("/cancel", s.cancelOrder)
	}
	api.GET("/orders/:id", s.getOrder)

	api.GET("/orderbook", s.getOrderBook)
	api.GET("/trades", s.getTrades)
	api.GET("/candles", s.getCandles)
	api.GET("/markets", s.getMarkets)
	api.GET("/portfolio", s.getPortfolio)

	api.POST("/sessions", s.openSession)
	api.DELETE("/sessions/:id", s.closeSession)

	if s.hub != nil {
		s.router.GET("/ws", s.hub.HandleConnection)
	}
}

func (s *Server) submitOrder(c *gin.Context) {
	account, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.engine.SubmitOrder(c.Request.Context(), core.SubmitRequest{
		Account:  account,
		Symbol:   req.Symbol,
		Side:     domain.Side(req.Side),
		Kind:     domain.OrderKind(req.Kind),
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		s.writeSubmitError(c, err)
		return
	}

	resp := dto.SubmitOrderResponse{
		Order:  convertOrder(res.Order),
		Trades: convertTrades(res.Trades),
	}
	if res.Degraded {
		// the order is durably recorded; fills will catch up
		resp.Message = "order accepted but not yet fully processed"
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeSubmitError maps intake failures to statuses that tell the caller
// which constraint failed, so the order can be corrected and resubmitted.
func (s *Server) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownSymbol),
		errors.Is(err, domain.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Error("order submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order submission failed"})
	}
}

func (s *Server) cancelOrder(c *gin.Context) {
	account, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.engine.CancelOrder(c.Request.Context(), req.OrderID, account)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.CancelOrderResponse{OrderID: req.OrderID, Cancelled: true})
	case errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, domain.ErrNotCancelable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Error("order cancellation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order cancellation failed"})
	}
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.engine.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order fetch failed"})
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: convertOrder(o)})
}

func (s *Server) getOrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query param required"})
		return
	}
	book, err := s.engine.OrderBook(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order book fetch failed"})
		return
	}
	c.JSON(http.StatusOK, dto.OrderBookResponse{
		Symbol: book.Symbol,
		Bids:   convertLevels(book.Bids),
		Asks:   convertLevels(book.Asks),
		Spread: book.Spread,
	})
}

func (s *Server) getTrades(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query param required"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	trades, err := s.engine.RecentTrades(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trades fetch failed"})
		return
	}
	c.JSON(http.StatusOK, dto.TradesResponse{Trades: convertTrades(trades)})
}

func (s *Server) getCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query param required"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	candles, err := s.engine.Candles(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "candles fetch failed"})
		return
	}
	out := make([]dto.Candle, len(candles))
	for i, cd := range candles {
		out[i] = dto.Candle{
			Symbol: cd.Symbol,
			Bucket: cd.Bucket,
			Open:   cd.Open,
			High:   cd.High,
			Low:    cd.Low,
			Close:  cd.Close,
			Volume: cd.Volume,
		}
	}
	c.JSON(http.StatusOK, dto.CandlesResponse{Candles: out})
}

func (s *Server) getMarkets(c *gin.Context) {
	category := domain.AssetCategory(c.DefaultQuery("category", string(domain.CategoryAll)))
	assets, err := s.engine.Markets(c.Request.Context(), category)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data unavailable"})
		return
	}
	out := make([]dto.MarketAsset, len(assets))
	for i, a := range assets {
		out[i] = dto.MarketAsset{
			Symbol:    a.Symbol,
			Name:      a.Name,
			Price:     a.Price,
			Change24h: a.Change24h,
			Volume24h: a.Volume24h,
			MarketCap: a.MarketCap,
			Category:  string(a.Category),
		}
	}
	c.JSON(http.StatusOK, dto.MarketsResponse{Assets: out})
}

func (s *Server) getPortfolio(c *gin.Context) {
	account, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}
	p, err := s.engine.Portfolio(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "portfolio fetch failed"})
		return
	}
	out := make([]dto.Holding, len(p.Holdings))
	for i, h := range p.Holdings {
		out[i] = dto.Holding{
			Symbol:   h.Symbol,
			Name:     h.Name,
			Balance:  h.Balance,
			Price:    h.Price,
			Value:    h.Value,
			Category: string(h.Category),
		}
	}
	c.JSON(http.StatusOK, dto.PortfolioResponse{
		Account:    p.Account,
		TotalValue: p.TotalValue,
		Holdings:   out,
	})
}

func (s *Server) openSession(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sessions disabled"})
		return
	}
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.sessions.Open(c.Request.Context(), req.Account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session open failed"})
		return
	}
	c.JSON(http.StatusOK, dto.OpenSessionResponse{SessionID: sess.ID, Account: sess.Account})
}

func (s *Server) closeSession(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sessions disabled"})
		return
	}
	if err := s.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session close failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// parseLimit reads the optional limit query param; a malformed value is
// rejected instead of silently falling back to the default.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return 0, false
	}
	return limit, true
}

func convertOrder(o *domain.Order) dto.Order {
	return dto.Order{
		ID:        o.ID,
		Account:   o.Account,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Kind:      string(o.Kind),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Filled:    o.Filled,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func convertTrades(trades []*domain.Trade) []dto.Trade {
	res := make([]dto.Trade, len(trades))
	for i, t := range trades {
		res[i] = dto.Trade{
			ID:        t.ID,
			Account:   t.Account,
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			Price:     t.Price,
			Quantity:  t.Quantity,
			CreatedAt: t.CreatedAt,
		}
	}
	return res
}

func convertLevels(levels []domain.BookLevel) []dto.BookLevel {
	res := make([]dto.BookLevel, len(levels))
	for i, l := range levels {
		res[i] = dto.BookLevel{Price: l.Price, Quantity: l.Quantity}
	}
	return res
}
