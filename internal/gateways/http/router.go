package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"subs_engine/internal/auth"
	"subs_engine/internal/entity"
	"subs_engine/internal/gateways/http/mw"
	"subs_engine/internal/usecase"
)

// RateLimit - per-caller throttling of the relay endpoint
type RateLimit struct {
	RPS   float64
	Burst int
}

func setupRouter(r *gin.Engine, u UseCases, tokens *auth.JWTManager, rl RateLimit) {
	r.HandleMethodNotAllowed = true

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	{
		v1 := r.Group("api/v1/")
		v1.Use(mw.Auth(tokens))
		setupSubscriptions(v1, u)
		setupWithdrawals(v1, u, rl)
		setupEvents(v1, u)
	}
}

func setupSubscriptions(r *gin.RouterGroup, u UseCases) {
	r.POST("/subscriptions", func(c *gin.Context) {
		if !requireAcceptJSON(c) || !requireContentJSON(c) {
			return
		}
		var input SubscribeInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := input.Validate(strfmt.Default); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		created, err := u.Sub.Subscribe(c,
			mw.Caller(c),
			time.Unix(swag.Int64Value(input.StartTime), 0).UTC(),
			swag.Int64Value(input.WeeklyAmount),
			entity.Account(swag.StringValue(input.Spender)),
		)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toSubscriptionView(created))
	})

	r.GET("/subscriptions", func(c *gin.Context) {
		if !requireAcceptJSON(c) {
			return
		}
		limit, offset, ok := parsePage(c)
		if !ok {
			return
		}
		subs, err := u.Sub.ListSubsByFilter(c, usecase.SubFilter{
			Subscriber: entity.Account(strings.TrimSpace(c.Query("subscriber"))),
			Spender:    entity.Account(strings.TrimSpace(c.Query("spender"))),
			Party:      mw.Caller(c),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		resp := make([]SubscriptionView, 0, len(subs))
		for _, s := range subs {
			resp = append(resp, toSubscriptionView(s))
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/subscriptions/:subscriber/:spender", func(c *gin.Context) {
		if !requireAcceptJSON(c) {
			return
		}
		subscriber, spender := entity.Account(c.Param("subscriber")), entity.Account(c.Param("spender"))
		if err := usecase.RequireParty(mw.Caller(c), subscriber, spender); err != nil {
			writeError(c, err)
			return
		}
		sub, acc, err := u.Sub.Preview(c, subscriber, spender)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, PreviewView{
			SubscriptionView: toSubscriptionView(sub),
			DuePeriods:       acc.DuePeriods,
			Owed:             acc.Owed,
		})
	})

	r.OPTIONS("/subscriptions", func(c *gin.Context) {
		c.Writer.Header().Set("Allow", "POST,OPTIONS,GET")
		c.Status(http.StatusNoContent)
	})
}

func setupWithdrawals(r *gin.RouterGroup, u UseCases, rl RateLimit) {
	r.POST("/withdrawals", func(c *gin.Context) {
		if !requireAcceptJSON(c) || !requireContentJSON(c) {
			return
		}
		var input WithdrawInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := input.Validate(strfmt.Default); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		amount, err := u.Sub.SubWithdraw(c, mw.Caller(c), entity.Account(swag.StringValue(input.Subscriber)))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"amount": amount})
	})

	r.POST("/withdrawals/batch", func(c *gin.Context) {
		if !requireAcceptJSON(c) || !requireContentJSON(c) {
			return
		}
		var input BatchWithdrawInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := input.Validate(strfmt.Default); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		n, err := u.Sub.MultiSubWithdraw(c, mw.Caller(c), toAccounts(input.Subscribers))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	})

	r.POST("/withdrawals/relay", mw.RateLimit(rl.RPS, rl.Burst), func(c *gin.Context) {
		if !requireAcceptJSON(c) || !requireContentJSON(c) {
			return
		}
		var input RelayWithdrawInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := input.Validate(strfmt.Default); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		n, err := u.Sub.MultiSubWithdrawFor(c, toAccounts(input.Subscribers), toAccounts(input.Spenders))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	})
}

func setupEvents(r *gin.RouterGroup, u UseCases) {
	r.GET("/events", func(c *gin.Context) {
		if !requireAcceptJSON(c) {
			return
		}
		limit, offset, ok := parsePage(c)
		if !ok {
			return
		}
		caller := mw.Caller(c)
		if account := strings.TrimSpace(c.Query("account")); account != "" {
			if err := usecase.RequireParty(caller, entity.Account(account)); err != nil {
				writeError(c, err)
				return
			}
		}
		events, err := u.Sub.ListEvents(c, usecase.EventFilter{
			Account: caller,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		resp := make([]EventView, 0, len(events))
		for _, e := range events {
			resp = append(resp, toEventView(e))
		}
		c.JSON(http.StatusOK, resp)
	})
}

// writeError maps use case errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, usecase.ErrInvalidParameters):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidPagination):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid pagination"})
	case errors.Is(err, usecase.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "caller is not a party"})
	case errors.Is(err, usecase.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, usecase.ErrTransferFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "transfer failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePage(c *gin.Context) (int, int, bool) {
	var limit, offset int
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid limit"})
			return 0, 0, false
		}
		limit = v
	}
	if s := c.Query("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid offset"})
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}

func acceptsJSON(h string) bool {
	if h == "" || h == "*/*" {
		return true
	}
	parts := strings.Split(h, ",")
	for _, p := range parts {
		mt := strings.TrimSpace(strings.SplitN(p, ";", 2)[0])
		if mt == "application/json" || mt == "*/*" {
			return true
		}
	}
	return false
}

func requireAcceptJSON(c *gin.Context) bool {
	if acceptsJSON(c.GetHeader("Accept")) {
		return true
	}
	c.JSON(http.StatusNotAcceptable, gin.H{"error": "Accept application/json only"})
	return false
}

func requireContentJSON(c *gin.Context) bool {
	if c.ContentType() == "" || c.ContentType() == "application/json" {
		return true
	}
	c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Use application/json"})
	return false
}
