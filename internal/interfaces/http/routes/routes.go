// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/handlers"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
	"github.com/your-org/inventory-ledger/internal/pkg/pdf"
)

// SetupInventoryRoutes sets up the tenant-scoped ledger routes
func SetupInventoryRoutes(rg *gin.RouterGroup, services *inventory.Services, reports *pdf.Service, cfg *config.Config) {
	inventoryHandler := handlers.NewInventoryHandler(services, reports)
	locationHandler := handlers.NewLocationHandler(services.Locations)
	lotHandler := handlers.NewLotHandler(services.Lots)

	inv := rg.Group("/inventory")
	inv.Use(middleware.AuthMiddleware(cfg))
	{
		inv.POST("/receive", inventoryHandler.Receive)
		inv.GET("/stock/:catalogItemId", inventoryHandler.GetStockLevel)

		inv.GET("/projections/:catalogItemId/:locationId", inventoryHandler.GetProjection)
		inv.GET("/projections/:catalogItemId/:locationId/events", inventoryHandler.GetEvents)
		inv.GET("/verify/:catalogItemId/:locationId", inventoryHandler.Verify)

		inv.POST("/reservations", inventoryHandler.Reserve)
		inv.GET("/reservations/:id", inventoryHandler.GetReservation)
		inv.POST("/reservations/:id/fulfill", inventoryHandler.Fulfill)
		inv.POST("/reservations/:id/release", inventoryHandler.Release)

		inv.POST("/carts/reserve", inventoryHandler.ReserveCart)
		inv.GET("/carts/:cartId/reservations", inventoryHandler.GetCartReservations)
		inv.POST("/carts/:cartId/fulfill", inventoryHandler.FulfillCart)
		inv.POST("/carts/:cartId/release", inventoryHandler.ReleaseCart)

		inv.GET("/trace/:receiptId", inventoryHandler.Trace)
		inv.GET("/trace/:receiptId/report", inventoryHandler.TraceReport)

		inv.GET("/locations", locationHandler.List)
		inv.POST("/locations", locationHandler.Create)
		inv.GET("/locations/:id", locationHandler.Get)
		inv.PUT("/locations/:id/status", locationHandler.SetStatus)

		inv.GET("/lots", lotHandler.List)
		inv.GET("/lots/:id", lotHandler.Get)
		inv.POST("/lots/:id/adjust-cost", lotHandler.AdjustCost)
		inv.POST("/lots/:id/adjust-quantity", lotHandler.AdjustQuantity)
		inv.POST("/lots/:id/close", lotHandler.Close)
	}
}

// SetupAdminRoutes sets up integrity and maintenance routes
func SetupAdminRoutes(rg *gin.RouterGroup, services *inventory.Services, cfg *config.Config) {
	adminHandler := handlers.NewAdminHandler(services)

	admin := rg.Group("/admin/inventory")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/projections/:catalogItemId/:locationId/rebuild", adminHandler.RebuildProjection)
		admin.GET("/projections/:catalogItemId/:locationId/drift", adminHandler.CheckDrift)
		admin.POST("/verify", adminHandler.VerifyAll)
		admin.GET("/alerts", adminHandler.ListAlerts)
		admin.POST("/alerts/:id/resolve", adminHandler.ResolveAlert)
		admin.POST("/sweep", adminHandler.Sweep)
	}
}

// SetupRoutes sets up all API routes
func SetupRoutes(rg *gin.RouterGroup, services *inventory.Services, reports *pdf.Service, cfg *config.Config) {
	SetupInventoryRoutes(rg, services, reports, cfg)
	SetupAdminRoutes(rg, services, cfg)
}
