package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/admin"
	"go.uber.org/zap"
)

type handlers struct {
	svc *admin.Service
	log *zap.Logger
}

type actionBody struct {
	Action        string `json:"action" binding:"required"`
	Seconds       int    `json:"seconds"`
	Message       string `json:"message"`
	Pattern       string `json:"pattern"`
	IsRegex       bool   `json:"isRegex"`
	CaseSensitive bool   `json:"caseSensitive"`
	RuleID        int64  `json:"ruleId"`
}

type ruleBody struct {
	Pattern       string `json:"pattern" binding:"required"`
	IsRegex       bool   `json:"isRegex"`
	CaseSensitive bool   `json:"caseSensitive"`
}

func groupID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("group"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid group id"})
		return 0, false
	}
	return id, true
}

func (h handlers) run(c *gin.Context, req admin.Request) {
	res, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("api: admin action failed", zap.Int64("group_id", req.GroupID),
				zap.Stringer("action", req.Action), zap.Error(err))
			c.JSON(status, gin.H{"err": http.StatusText(status)})
			return
		}
		c.JSON(status, gin.H{"err": err.Error()})
		return
	}
	h.log.Info("api: admin action", zap.String("subject", c.GetString(ctxSubject)),
		zap.Int64("group_id", req.GroupID), zap.Stringer("action", req.Action))
	c.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, admin.ErrBadArgument), errors.Is(err, admin.ErrUnknownAction), errors.Is(err, guard.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, guard.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h handlers) status(c *gin.Context) {
	if id, ok := groupID(c); ok {
		h.run(c, admin.Request{GroupID: id, Action: admin.ActionStatus})
	}
}

func (h handlers) action(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	var body actionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	action, err := admin.ParseAction(body.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	h.run(c, admin.Request{
		GroupID:       id,
		Action:        action,
		Seconds:       body.Seconds,
		Message:       body.Message,
		Pattern:       body.Pattern,
		IsRegex:       body.IsRegex,
		CaseSensitive: body.CaseSensitive,
		RuleID:        body.RuleID,
	})
}

func (h handlers) listRules(c *gin.Context) {
	if id, ok := groupID(c); ok {
		h.run(c, admin.Request{GroupID: id, Action: admin.ActionKeywordList})
	}
}

func (h handlers) addRule(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	var body ruleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	h.run(c, admin.Request{GroupID: id, Action: admin.ActionKeywordAdd, Pattern: body.Pattern,
		IsRegex: body.IsRegex, CaseSensitive: body.CaseSensitive})
}

func (h handlers) removeRule(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || ruleID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid rule id"})
		return
	}
	h.run(c, admin.Request{GroupID: id, Action: admin.ActionKeywordRemove, RuleID: ruleID})
}

func (h handlers) clearRules(c *gin.Context) {
	if id, ok := groupID(c); ok {
		h.run(c, admin.Request{GroupID: id, Action: admin.ActionKeywordClear})
	}
}
