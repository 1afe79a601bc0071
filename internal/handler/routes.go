package handler

import (
	"github.com/gofiber/fiber/v2"
)

type Routes struct {
	Albums   *AlbumHandler
	Events   *EventHandler
	Payments *PaymentHandler
	// StaffAuth guards staff-only routes.
	StaffAuth fiber.Handler
}

// Register mounts the album store API on router, normally the /api group.
func (r Routes) Register(api fiber.Router) {
	staff := r.StaffAuth

	albums := api.Group("/albums")
	albums.Post("/", r.Albums.CreateAlbum)
	albums.Get("/:code", r.Albums.GetAlbum)
	albums.Get("/:code/photos", r.Albums.GetAlbumPhotos)
	albums.Get("/:code/status", r.Albums.GetAlbumStatus)
	albums.Post("/:code/photos", r.Albums.AddPhoto)
	albums.Delete("/:code/photos/:photoId", r.Albums.DeletePhoto)
	albums.Post("/:code/request-payment", r.Albums.RequestPayment)
	albums.Post("/:code/request-bigscreen", r.Albums.RequestBigScreen)
	albums.Post("/:code/checkout", r.Payments.CreateCheckout)
	albums.Put("/:code/status", staff, r.Albums.UpdateStatus)
	albums.Delete("/:code", staff, r.Albums.DeleteAlbum)

	events := api.Group("/events")
	events.Get("/:id", r.Events.GetEvent)
	events.Get("/:id/rules", r.Events.GetRules)
	events.Post("/:id/staff-login", r.Events.StaffLogin)
	events.Get("/:id/bigscreen", r.Events.GetDisplaySlot)
	events.Post("/:id/bigscreen", staff, r.Events.SetDisplaySlot)
	events.Delete("/:id/bigscreen", staff, r.Events.ClearDisplaySlot)
	events.Get("/:id/payment-requests", staff, r.Events.GetPaymentRequests)
	events.Get("/:id/bigscreen-requests", staff, r.Events.GetBigScreenRequests)
	events.Get("/:id/albums", staff, r.Events.GetAlbums)
	events.Get("/:id/stats", staff, r.Events.GetStats)

	api.Post("/payments/webhook", r.Payments.HandleStripeWebhook)
}
