package handler

import (
	"coinledger/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupRouter wires the HTTP surface over the ledger.
func SetupRouter(l *ledger.Ledger, rdb *redis.Client) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())

	h := NewHandler(l, rdb)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.POST("/create", h.CreateAccount)
			account.GET("/list", h.ListAccounts)
		}

		transfer := api.Group("/transfer")
		{
			transfer.POST("/execute", h.Transfer)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/squash", h.Squash)
			admin.POST("/purge", h.Purge)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
