// Package router maps the HTTP surface onto handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/handler"
	"github.com/openwrench/openwrench/internal/middleware"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/ws"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Cfg      config.Config
	St       store.Store
	Payments service.Payments
	Hub      *ws.Hub
	Redis    *redis.Client // nil disables rate limiting
}

// Register wires every route. Credential-bearing endpoints (logins,
// registration, the verification-code flow) sit behind the rate limiter;
// everything session-scoped sits behind its cookie middleware.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	admin := handler.NewAdminHandler(d.Cfg, d.St)
	provider := handler.NewProviderHandler(d.Cfg, d.St)
	customer := handler.NewCustomerHandler(d.Cfg, d.St)
	access := handler.NewCustomerAccessHandler(d.Cfg, d.St, d.Payments)
	jobs := handler.NewJobHandler(d.Cfg, d.St)
	payments := handler.NewPaymentHandler(d.Cfg, d.St, d.Payments)
	webhooks := handler.NewWebhookHandler(d.Payments)
	conversations := handler.NewConversationHandler(d.St)
	messages := handler.NewMessageHandler(d.St, d.Hub)

	api := e.Group("/api")

	limited := api.Group("")
	limited.Use(middleware.RateLimit(d.Redis, config.LoadRateLimitConfig()))
	limited.POST("/admin/login", admin.Login)
	limited.POST("/provider/login", provider.Login)
	limited.POST("/provider/register", provider.Register)
	limited.POST("/customer/login", customer.Login)
	limited.POST("/customer/register", customer.Register)
	limited.POST("/customer/request-access", access.RequestAccess)
	limited.POST("/customer/verify-access", access.VerifyAccess)

	api.POST("/admin/logout", admin.Logout)
	api.POST("/provider/logout", provider.Logout)
	api.POST("/customer/logout", customer.Logout)

	adminAuth := api.Group("", middleware.SessionAuth(d.St, d.Cfg, store.SessionAdmin, handler.CookieAdmin))
	adminAuth.GET("/admin/verify", admin.Verify)
	adminAuth.POST("/deposits/:jobId", payments.CreateDeposit)
	adminAuth.POST("/checkout-sessions", payments.CreateCheckoutSession)

	providerAuth := api.Group("", middleware.SessionAuth(d.St, d.Cfg, store.SessionProvider, handler.CookieProvider))
	providerAuth.GET("/provider/verify", provider.Verify)

	customerAuth := api.Group("", middleware.SessionAuth(d.St, d.Cfg, store.SessionCustomer, handler.CookieCustomer))
	customerAuth.GET("/customer/verify", customer.Verify)

	// Token-scoped customer self-service; the access token in the payload
	// is the credential, no cookie involved.
	api.GET("/customer/jobs", access.Jobs)
	api.POST("/customer/reschedule", access.Reschedule)
	api.POST("/customer/cancel", access.Cancel)

	api.POST("/jobs", jobs.Create)
	api.GET("/jobs", jobs.List)
	api.GET("/jobs/:id", jobs.Get)
	api.PATCH("/jobs/:id", jobs.Patch)
	api.POST("/jobs/:id/check-in", jobs.CheckIn)
	api.POST("/jobs/:id/check-out", jobs.CheckOut)

	api.GET("/pay/:token", payments.Pay)
	api.POST("/webhooks/stripe", webhooks.Stripe)

	api.GET("/conversations", conversations.ListByUser)
	api.GET("/conversations/:jobId", conversations.GetByJob)
	api.POST("/conversations", conversations.Create)
	api.GET("/messages/:conversationId", messages.List)
	api.POST("/messages", messages.Create)

	e.GET("/ws", d.Hub.Serve)
}
