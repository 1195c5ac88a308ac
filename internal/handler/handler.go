package handler

import (
	"errors"
	"sort"
	"time"

	"coinledger/internal/infrastructure/lock"
	"coinledger/internal/ledger"
	"coinledger/internal/model"
	"coinledger/internal/money"
	"coinledger/internal/repository"
	"coinledger/pkg/idgen"
	"coinledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Handler exposes the ledger's public operations over HTTP. All business
// rules beyond balance sufficiency live with callers of this API.
type Handler struct {
	ledger      *ledger.Ledger
	redisClient *redis.Client
	refs        *idgen.Snowflake
}

func NewHandler(l *ledger.Ledger, redisClient *redis.Client) *Handler {
	refs, _ := idgen.NewSnowflake(1)
	return &Handler{
		ledger:      l,
		redisClient: redisClient,
		refs:        refs,
	}
}

type accountView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	WorldID     int64  `json:"world_id"`
	Flags       int    `json:"flags"`
	Balance     int64  `json:"balance"`
	Display     string `json:"balance_display"`
	Description string `json:"description,omitempty"`
}

func viewOf(a *model.Account) accountView {
	return accountView{
		ID:          a.ID,
		Name:        a.Name,
		WorldID:     a.WorldID,
		Flags:       int(a.Flags),
		Balance:     a.Balance,
		Display:     money.Money(a.Balance).String(),
		Description: a.Description,
	}
}

// GetBalance returns one account resolved by name, creating a player account
// on first reference.
func (h *Handler) GetBalance(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		response.ParamError(c, "name is required")
		return
	}

	account, err := h.ledger.FindOrCreatePlayerAccount(c.Request.Context(), name)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, viewOf(account))
}

type createAccountRequest struct {
	Name        string `json:"name" binding:"required"`
	WorldID     int64  `json:"world_id"`
	Flags       int    `json:"flags"`
	Description string `json:"description"`
}

func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	account, err := h.ledger.CreateAccount(c.Request.Context(),
		req.Name, req.WorldID, model.AccountFlags(req.Flags)|model.AccountEnabled, req.Description)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			response.BusinessError(c, response.CodeDuplicateName, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, viewOf(account))
}

// ListAccounts returns every non-system account ranked by balance, the input
// for leaderboard display.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.ledger.ListAccounts(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		if account.IsSystemAccount() {
			continue
		}
		views = append(views, viewOf(account))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Balance > views[j].Balance })

	response.Success(c, views)
}

type transferRequest struct {
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Options int    `json:"options"`
	Message string `json:"message"`
}

// Transfer moves money between two named accounts.
func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	from, err := h.ledger.FindAccount(ctx, req.From)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.BusinessError(c, response.CodeAccountNotFound, "source account not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	to, err := h.ledger.FindAccount(ctx, req.To)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.BusinessError(c, response.CodeAccountNotFound, "destination account not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	// Serialize duplicate submits from the same funding account across
	// service instances. The engine's commit section handles everything else.
	// The token must be unique per request: Unlock compares it before deleting,
	// and a shared token would let a request whose lock expired release the
	// current holder's.
	transferLock := lock.NewTransferLock(h.redisClient, from.ID, h.refs.TransferReference())
	if err := transferLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		response.BusinessError(c, response.CodeTransferFailed, "ledger busy, retry later")
		return
	}
	defer transferLock.Unlock(ctx)

	receipt, err := h.ledger.Transfer(ctx, from.ID, to.ID, amount,
		ledger.TransferOptions(req.Options), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
		case errors.Is(err, ledger.ErrInvalidTransfer):
			response.BusinessError(c, response.CodeInvalidTransfer, err.Error())
		case errors.Is(err, ledger.ErrTransferCancelled):
			response.BusinessError(c, response.CodeTransferCancelled, err.Error())
		case errors.Is(err, ledger.ErrCommitTimeout):
			response.BusinessError(c, response.CodeCommitTimeout, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}
	response.Success(c, receipt)
}

// Squash compacts the journal on demand.
func (h *Handler) Squash(c *gin.Context) {
	if err := h.ledger.Squash(c.Request.Context()); err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, nil)
}

type purgeRequest struct {
	RemoveOrphaned    bool `json:"remove_orphaned"`
	RemoveZeroBalance bool `json:"remove_zero_balance"`
}

// Purge runs the selected maintenance passes.
func (h *Handler) Purge(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	var opts ledger.PurgeOptions
	if req.RemoveOrphaned {
		opts |= ledger.RemoveOrphanedAccounts
	}
	if req.RemoveZeroBalance {
		opts |= ledger.RemoveZeroBalanceAccounts
	}

	removed, err := h.ledger.Purge(c.Request.Context(), opts)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"removed": removed})
}
