// Package server exposes the engine over a JSON HTTP API. Amounts
// cross this boundary as decimal currency and are converted to cents
// exactly once, on the way in and on the way out.
package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"borlette/internal/bet"
	"borlette/internal/engine"
	"borlette/internal/model"
	"borlette/internal/money"
	"borlette/internal/observability"
)

// Server holds the dependencies for the HTTP handlers.
type Server struct {
	engine *engine.Engine
	log    zerolog.Logger
	health *observability.HealthChecker
}

// New creates a Server.
func New(eng *engine.Engine, log zerolog.Logger, health *observability.HealthChecker) *Server {
	return &Server{engine: eng, log: log, health: health}
}

// RegisterRoutes registers all API routes.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
	router.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))

	api := router.Group("/api/v1")
	{
		api.POST("/lotteries", s.CreateLottery)
		api.GET("/lotteries", s.ListLotteries)
		api.GET("/lotteries/:id", s.GetLottery)
		api.PATCH("/lotteries/:id", s.UpdateLottery)
		api.DELETE("/lotteries/:id", s.DeleteLottery)
		api.POST("/lotteries/:id/winners", s.DeclareWinners)
		api.POST("/lotteries/:id/recalculate", s.RecalculateWinners)
		api.GET("/lotteries/:id/sold-numbers", s.GetSoldNumbers)
		api.GET("/lotteries/:id/tickets", s.TicketsByLottery)

		api.POST("/tickets", s.SellTicket)
		api.GET("/tickets/:code", s.GetTicket)
		api.POST("/tickets/:code/payout", s.PayoutTicket)

		api.POST("/agents", s.CreateAgent)
		api.GET("/agents/:id", s.GetAgent)
		api.PATCH("/agents/:id", s.UpdateAgent)
		api.POST("/agents/:id/settle", s.SettleAgent)
		api.GET("/agents/:id/transactions", s.AgentTransactions)
		api.GET("/agents/:id/balance/replay", s.ReplayAgentBalance)
		api.GET("/agents/:id/tickets", s.AgentTickets)
	}
}

// --- Lotteries ---

type amountRangePayload struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type lotteryPayload struct {
	Name              string                          `json:"name"`
	DrawDate          time.Time                       `json:"drawDate"`
	NumberRange       *model.NumberRange              `json:"validNumberRange"`
	NumWinningNumbers int                             `json:"numberOfWinningNumbers"`
	PayoutRules       map[bet.Type]int64              `json:"payoutRules"`
	MaxPerNumber      map[bet.Type]float64            `json:"maxPerNumber"`
	MaxPerNumberAll   *float64                        `json:"maxPerNumberAll"`
	BetLimits         map[bet.Type]amountRangePayload `json:"betLimits"`
	States            []string                        `json:"states"`
}

func (s *Server) CreateLottery(c *gin.Context) {
	var req lotteryPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	params := engine.LotteryParams{
		Name:              req.Name,
		DrawDate:          req.DrawDate,
		NumWinningNumbers: req.NumWinningNumbers,
		PayoutRules:       req.PayoutRules,
		States:            req.States,
	}
	if req.NumberRange != nil {
		params.NumberRange = *req.NumberRange
	}

	var err error
	params.MaxPerNumber, params.MaxPerNumberAll, err = capsToCents(req.MaxPerNumber, req.MaxPerNumberAll)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	params.BetLimits, err = limitsToCents(req.BetLimits)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	lot, err := s.engine.CreateLottery(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lotteryResponse(lot))
}

func (s *Server) GetLottery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lot, err := s.engine.GetLottery(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotteryResponse(lot))
}

func (s *Server) ListLotteries(c *gin.Context) {
	lots, err := s.engine.ListLotteries(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(lots))
	for _, l := range lots {
		out = append(out, lotteryResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"lotteries": out})
}

type lotteryUpdatePayload struct {
	Name              *string                         `json:"name"`
	DrawDate          *time.Time                      `json:"drawDate"`
	NumberRange       *model.NumberRange              `json:"validNumberRange"`
	NumWinningNumbers *int                            `json:"numberOfWinningNumbers"`
	PayoutRules       map[bet.Type]int64              `json:"payoutRules"`
	MaxPerNumber      map[bet.Type]float64            `json:"maxPerNumber"`
	MaxPerNumberAll   *float64                        `json:"maxPerNumberAll"`
	BetLimits         map[bet.Type]amountRangePayload `json:"betLimits"`
	States            []string                        `json:"states"`
}

func (s *Server) UpdateLottery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req lotteryUpdatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	params := engine.UpdateParams{
		Name:              req.Name,
		DrawDate:          req.DrawDate,
		NumberRange:       req.NumberRange,
		NumWinningNumbers: req.NumWinningNumbers,
		PayoutRules:       req.PayoutRules,
		States:            req.States,
	}
	var err error
	params.MaxPerNumber, params.MaxPerNumberAll, err = capsToCents(req.MaxPerNumber, req.MaxPerNumberAll)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	params.BetLimits, err = limitsToCents(req.BetLimits)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	lot, err := s.engine.UpdateLottery(c.Request.Context(), id, params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotteryResponse(lot))
}

func (s *Server) DeleteLottery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.DeleteLottery(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DeclareWinners(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		WinningNumbers map[bet.Type][]string `json:"winningNumbers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	lot, err := s.engine.DeclareWinners(c.Request.Context(), id, req.WinningNumbers)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotteryResponse(lot))
}

func (s *Server) RecalculateWinners(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lot, err := s.engine.RecalculateWinners(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lotteryResponse(lot))
}

func (s *Server) GetSoldNumbers(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	numbers, err := s.engine.GetSoldNumbers(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"soldNumbers": numbers})
}

func (s *Server) TicketsByLottery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tickets, err := s.engine.TicketsByLottery(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": ticketResponses(tickets)})
}

// --- Tickets ---

type betPayload struct {
	BetType bet.Type  `json:"betType"`
	Numbers []string  `json:"numbers"`
	Amounts []float64 `json:"amounts"`
	State   string    `json:"state"`
}

type sellRequest struct {
	LotteryID uuid.UUID    `json:"lottery"`
	AgentID   uuid.UUID    `json:"agent"`
	Bets      []betPayload `json:"bets"`
	Period    string       `json:"period"`
}

func (s *Server) SellTicket(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	bets := make([]bet.Bet, 0, len(req.Bets))
	for _, b := range req.Bets {
		amounts := make([]int64, 0, len(b.Amounts))
		for _, a := range b.Amounts {
			cents, err := money.FromDecimal(a)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			amounts = append(amounts, cents)
		}
		bets = append(bets, bet.Bet{
			Type:    b.BetType,
			Numbers: b.Numbers,
			Amounts: amounts,
			State:   b.State,
		})
	}

	ticket, err := s.engine.SellTicket(c.Request.Context(), req.LotteryID, req.AgentID, bets, req.Period)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticketResponse(ticket))
}

func (s *Server) GetTicket(c *gin.Context) {
	ticket, err := s.engine.GetTicket(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticketResponse(ticket))
}

func (s *Server) PayoutTicket(c *gin.Context) {
	var req struct {
		AgentID uuid.UUID `json:"agent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ticket, err := s.engine.PayoutTicket(c.Request.Context(), c.Param("code"), req.AgentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticketResponse(ticket))
}

// --- Agents ---

func (s *Server) CreateAgent(c *gin.Context) {
	var req struct {
		Name           string  `json:"name"`
		CommissionRate float64 `json:"commissionRate"` // percent, 0..100
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	agent, err := s.engine.CreateAgent(c.Request.Context(), req.Name, percentToBps(req.CommissionRate))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agentResponse(agent))
}

func (s *Server) GetAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	agent, err := s.engine.GetAgent(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentResponse(agent))
}

func (s *Server) UpdateAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		CommissionRate *float64           `json:"commissionRate"`
		Status         *model.AgentStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	var (
		agent *model.Agent
		err   error
	)
	if req.CommissionRate != nil {
		agent, err = s.engine.SetAgentCommission(c.Request.Context(), id, percentToBps(*req.CommissionRate))
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	if req.Status != nil {
		agent, err = s.engine.SetAgentStatus(c.Request.Context(), id, *req.Status)
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	if agent == nil {
		badRequest(c, "nothing to update")
		return
	}
	c.JSON(http.StatusOK, agentResponse(agent))
}

func (s *Server) SettleAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Amount      float64   `json:"amount"` // positive reduces what the agent owes
		AdminID     uuid.UUID `json:"admin"`
		Description string    `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	cents, err := money.FromDecimal(req.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	agent, err := s.engine.SettleAgentBalance(c.Request.Context(), id, cents, req.AdminID, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentResponse(agent))
}

func (s *Server) AgentTransactions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	txs, err := s.engine.AgentStatement(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse(tx))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) ReplayAgentBalance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	replayed, cached, err := s.engine.ReplayAgentBalance(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"replayedBalance": money.ToDecimal(replayed),
		"cachedBalance":   money.ToDecimal(cached),
		"consistent":      replayed == cached,
	})
}

func (s *Server) AgentTickets(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	tickets, err := s.engine.TicketsByAgent(c.Request.Context(), id, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": ticketResponses(tickets)})
}

// --- Helpers ---

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps engine errors to HTTP statuses. Rejections carry
// their reason verbatim; internal failures stay opaque to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case engine.IsRejection(err):
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// percentToBps converts a percent rate to basis points, rounding so
// float representation error (10.15 * 100 = 1014.999…) cannot shave
// a point off the rate.
func percentToBps(rate float64) int64 {
	return int64(math.Round(rate * 100))
}

func capsToCents(perType map[bet.Type]float64, all *float64) (map[bet.Type]int64, *int64, error) {
	var out map[bet.Type]int64
	if perType != nil {
		out = make(map[bet.Type]int64, len(perType))
		for t, v := range perType {
			cents, err := money.FromDecimal(v)
			if err != nil {
				return nil, nil, err
			}
			out[t] = cents
		}
	}
	var allCents *int64
	if all != nil {
		cents, err := money.FromDecimal(*all)
		if err != nil {
			return nil, nil, err
		}
		allCents = &cents
	}
	return out, allCents, nil
}

func limitsToCents(in map[bet.Type]amountRangePayload) (map[bet.Type]model.AmountRange, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[bet.Type]model.AmountRange, len(in))
	for t, r := range in {
		min, err := money.FromDecimal(r.Min)
		if err != nil {
			return nil, err
		}
		max, err := money.FromDecimal(r.Max)
		if err != nil {
			return nil, err
		}
		out[t] = model.AmountRange{Min: min, Max: max}
	}
	return out, nil
}

// --- Response shaping (cents back to decimal) ---

func lotteryResponse(l *model.Lottery) gin.H {
	caps := make(map[bet.Type]float64, len(l.MaxPerNumber))
	for t, v := range l.MaxPerNumber {
		caps[t] = money.ToDecimal(v)
	}
	limits := make(map[bet.Type]amountRangePayload, len(l.BetLimits))
	for t, r := range l.BetLimits {
		limits[t] = amountRangePayload{Min: money.ToDecimal(r.Min), Max: money.ToDecimal(r.Max)}
	}

	resp := gin.H{
		"id":                     l.ID,
		"name":                   l.Name,
		"status":                 l.Status,
		"drawDate":               l.DrawDate,
		"validNumberRange":       l.NumberRange,
		"numberOfWinningNumbers": l.NumWinningNumbers,
		"payoutRules":            l.PayoutRules,
		"maxPerNumber":           caps,
		"states":                 l.States,
		"ticketsSold":            l.TicketsSold,
		"createdAt":              l.CreatedAt,
		"updatedAt":              l.UpdatedAt,
	}
	if len(limits) > 0 {
		resp["betLimits"] = limits
	}
	if l.WinningNumbers != nil {
		resp["winningNumbers"] = l.WinningNumbers
	}
	return resp
}

func ticketResponse(t *model.Ticket) gin.H {
	bets := make([]gin.H, 0, len(t.Bets))
	for _, b := range t.Bets {
		amounts := make([]float64, 0, len(b.Amounts))
		for _, a := range b.Amounts {
			amounts = append(amounts, money.ToDecimal(a))
		}
		bets = append(bets, gin.H{
			"betType": b.Type,
			"numbers": b.Numbers,
			"amounts": amounts,
			"state":   b.State,
		})
	}

	return gin.H{
		"id":           t.ID,
		"code":         t.Code,
		"lottery":      t.LotteryID,
		"agent":        t.AgentID,
		"bets":         bets,
		"totalAmount":  money.ToDecimal(t.TotalAmount),
		"isWinner":     t.IsWinner,
		"payoutAmount": money.ToDecimal(t.PayoutAmount),
		"status":       t.Status,
		"period":       t.Period,
		"createdAt":    t.CreatedAt,
		"updatedAt":    t.UpdatedAt,
	}
}

func ticketResponses(tickets []*model.Ticket) []gin.H {
	out := make([]gin.H, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketResponse(t))
	}
	return out
}

func agentResponse(a *model.Agent) gin.H {
	return gin.H{
		"id":             a.ID,
		"name":           a.Name,
		"balance":        money.ToDecimal(a.Balance),
		"commissionRate": float64(a.CommissionBps) / 100,
		"status":         a.Status,
		"createdAt":      a.CreatedAt,
		"updatedAt":      a.UpdatedAt,
	}
}

func transactionResponse(tx *model.Transaction) gin.H {
	resp := gin.H{
		"id":        tx.ID,
		"agent":     tx.AgentID,
		"type":      tx.Type,
		"amount":    money.ToDecimal(tx.Amount),
		"createdAt": tx.CreatedAt,
	}
	if tx.TicketID != nil {
		resp["ticket"] = *tx.TicketID
	}
	if tx.LotteryID != nil {
		resp["relatedLottery"] = *tx.LotteryID
	}
	if tx.Description != "" {
		resp["description"] = tx.Description
	}
	return resp
}
