package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/richardliu001/reliability-core/internal/wallet"
)

// RegisterHandlers binds the wallet command/query routes plus the outbox
// observability endpoint.
func RegisterHandlers(r *gin.Engine, deps Dependencies) {
	v1 := r.Group("/v1")
	{
		v1.POST("/wallets/:id/deposit", depositHandler(deps))
		v1.POST("/wallets/:id/withdraw", withdrawHandler(deps))
		v1.POST("/wallets/:id/transfer", transferHandler(deps))
		v1.GET("/wallets/:id/balance", balanceHandler(deps))
		v1.GET("/wallets/:id/history", historyHandler(deps))
		v1.GET("/outbox/stats", outboxStatsHandler(deps))
	}
}

type depositReq struct {
	Amount         string `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func depositHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		result, err := deps.Bus.Handle(c.Request.Context(), wallet.DepositCommand{
			WalletID: id, Amount: amt, IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": result})
	}
}

type withdrawReq struct {
	Amount         string `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func withdrawHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		result, err := deps.Bus.Handle(c.Request.Context(), wallet.WithdrawCommand{
			WalletID: id, Amount: amt, IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": result})
	}
}

type transferReq struct {
	ToID           string `json:"to_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func transferHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fromID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		toID, err := strconv.ParseUint(req.ToID, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to_id"})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		result, err := deps.Bus.Handle(c.Request.Context(), wallet.TransferCommand{
			FromWalletID: fromID, ToWalletID: toID, Amount: amt, IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		balances := result.([2]decimal.Decimal)
		c.JSON(http.StatusOK, gin.H{"from_balance": balances[0], "to_balance": balances[1]})
	}
}

func balanceHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		bal, err := deps.WalletSvc.GetBalance(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := deps.WalletSvc.GetHistory(c.Request.Context(), id, limit, &since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

func outboxStatsHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := deps.OutboxStore.GetStats(c.Request.Context(), deps.BlogID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
