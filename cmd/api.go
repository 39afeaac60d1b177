package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cosmossdk.io/log"
	"github.com/gin-gonic/gin"

	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
	"github.com/strangelove-ventures/xion-cctp-bridge/offramp"
	"github.com/strangelove-ventures/xion-cctp-bridge/relayer"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

type transferRequest struct {
	Amount     string `json:"amount"`
	Recipient  string `json:"recipient" binding:"required"`
	SkipSource bool   `json:"skip_source"`
}

type resumeRequest struct {
	BurnTxHash string `json:"burn_tx_hash" binding:"required"`
}

type withdrawRequest struct {
	Amount      string `json:"amount" binding:"required"`
	BankAccount string `json:"bank_account" binding:"required"`
	Speed       string `json:"speed"`
	Mode        string `json:"mode"`
}

// api serves the bridge and withdrawal flows over HTTP. balances and withdrawer may be nil.
type api struct {
	// ctx outlives requests; transfers started over HTTP run until it is done
	ctx          context.Context
	orchestrator *bridge.Orchestrator
	balances     *relayer.BalanceWatcher
	withdrawer   *offramp.Withdrawer
	logger       log.Logger
}

func newRouter(a *api, trustedProxies []string) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}

	router.GET("/transfer", a.getTransfer)
	router.POST("/transfer", a.startTransfer)
	router.POST("/transfer/reset", a.resetTransfer)
	router.POST("/transfer/resume", a.resumeTransfer)
	router.GET("/transfer/events", a.streamTransfer)
	router.GET("/transfers", a.getHistory)
	router.GET("/transfers/:id", a.getTransferByID)
	router.GET("/pending", a.getPending)
	router.GET("/balances", a.getBalances)
	router.GET("/quote", a.getQuote)
	router.POST("/withdraw", a.withdraw)

	return router, nil
}

func (a *api) getTransfer(c *gin.Context) {
	c.JSON(http.StatusOK, a.orchestrator.Status())
}

func (a *api) startTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	route := bridge.RouteFull
	if req.SkipSource {
		route = bridge.RouteBridgeOnly
	}
	if err := a.orchestrator.Start(a.ctx, bridge.Request{Amount: req.Amount, Recipient: req.Recipient, Route: route}); err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, a.orchestrator.Status())
}

func (a *api) resetTransfer(c *gin.Context) {
	if err := a.orchestrator.Reset(); err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, a.orchestrator.Status())
}

func (a *api) resumeTransfer(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.orchestrator.StartResume(a.ctx, req.BurnTxHash); err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, a.orchestrator.Status())
}

// streamTransfer sends a server-sent event on every transfer transition.
func (a *api) streamTransfer(c *gin.Context) {
	updates, unsubscribe := a.orchestrator.Subscribe()
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case transfer, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("transfer", transfer)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (a *api) getHistory(c *gin.Context) {
	transfers := a.orchestrator.History()
	if transfers == nil {
		transfers = []types.BridgeTransfer{}
	}
	c.JSON(http.StatusOK, transfers)
}

func (a *api) getTransferByID(c *gin.Context) {
	transfer, ok := a.orchestrator.Transfer(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown transfer"})
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func (a *api) getPending(c *gin.Context) {
	burns, err := a.orchestrator.PendingBurns()
	if err != nil {
		a.abort(c, err)
		return
	}
	if burns == nil {
		burns = []*types.BurnMessage{}
	}
	c.JSON(http.StatusOK, burns)
}

func (a *api) getBalances(c *gin.Context) {
	if a.balances == nil {
		c.JSON(http.StatusOK, []relayer.WalletBalance{})
		return
	}
	c.JSON(http.StatusOK, a.balances.Balances())
}

func (a *api) getQuote(c *gin.Context) {
	if a.withdrawer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no off-ramp configured"})
		return
	}
	quote, err := a.withdrawer.GetQuote(c.Request.Context(), c.Query("amount"))
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (a *api) withdraw(c *gin.Context) {
	if a.withdrawer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no off-ramp configured"})
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Speed == "" {
		req.Speed = types.SpeedStandard
	}
	if req.Mode == "" {
		req.Mode = string(types.ModeGas)
	}

	res, err := a.withdrawer.Withdraw(c.Request.Context(), offramp.WithdrawRequest{
		Amount:           req.Amount,
		BankAccountToken: req.BankAccount,
		Speed:            req.Speed,
		Mode:             types.WithdrawalMode(req.Mode),
	})
	var partial *offramp.PartialWithdrawalError
	if errors.As(err, &partial) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "partial": partialDetails(partial)})
		return
	}
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("API request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps an error to the HTTP status returned to API clients.
func statusFor(err error) int {
	var serviceErr *types.ServiceError
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTransferInProgress), errors.Is(err, types.ErrResetRequired), errors.Is(err, types.ErrQuoteSuperseded):
		return http.StatusConflict
	case errors.Is(err, types.ErrServiceUnavailable), errors.Is(err, types.ErrSessionKeyUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &serviceErr):
		if serviceErr.StatusCode >= http.StatusBadRequest && serviceErr.StatusCode < http.StatusInternalServerError {
			return serviceErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
