package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/skyvault/backend/internal/middleware"
	"github.com/skyvault/backend/pkg/utils"
)

// Handlers bundles every route handler for registration.
type Handlers struct {
	Auth    *AuthHandler
	Users   *UsersHandler
	Folders *FoldersHandler
	Files   *FilesHandler
	Shares  *SharesHandler
	WS      *WSHandler
}

// RegisterRoutes wires the full route table onto app. Static segments are
// registered before parameterized ones so /shares/my is never captured by
// /shares/:token.
func RegisterRoutes(app *fiber.App, authmw *middleware.AuthMiddleware, h Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"status": "ok"})
	})

	app.Use("/ws", h.WS.Upgrade)
	app.Get("/ws", h.WS.Serve())

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Get("/me", authmw.RequireAuth, h.Auth.Me)
	auth.Patch("/me", authmw.RequireAuth, h.Auth.UpdateMe)
	auth.Post("/change-password", authmw.RequireAuth, h.Auth.ChangePassword)

	users := api.Group("/users", authmw.RequireAuth)
	users.Get("/stats", h.Users.Stats)
	users.Get("/avatar", h.Users.AvatarURL)
	users.Post("/avatar", h.Users.UploadAvatar)
	users.Delete("/avatar", h.Users.RemoveAvatar)

	folders := api.Group("/folders", authmw.RequireAuth)
	folders.Post("/", h.Folders.Create)
	folders.Get("/", h.Folders.List)
	folders.Get("/:id", h.Folders.Get)
	folders.Get("/:id/contents", h.Folders.Contents)
	folders.Get("/:id/breadcrumb", h.Folders.Breadcrumb)
	folders.Patch("/:id/rename", h.Folders.Rename)
	folders.Patch("/:id/move", h.Folders.Move)
	folders.Delete("/:id", h.Folders.Delete)

	files := api.Group("/files", authmw.RequireAuth)
	files.Post("/upload", h.Files.Upload)
	files.Get("/", h.Files.List)
	files.Get("/recent", h.Files.Recent)
	files.Get("/trash", h.Files.ListTrash)
	files.Get("/:id", h.Files.Get)
	files.Get("/:id/download", h.Files.Download)
	files.Patch("/:id/rename", h.Files.Rename)
	files.Patch("/:id/move", h.Files.Move)
	files.Delete("/:id", h.Files.Trash)
	files.Post("/:id/restore", h.Files.Restore)
	files.Delete("/:id/permanent", h.Files.DeletePermanently)

	shares := api.Group("/shares")
	shares.Post("/", authmw.RequireAuth, h.Shares.CreateLink)
	shares.Get("/my", authmw.RequireAuth, h.Shares.ListMine)

	direct := shares.Group("/direct", authmw.RequireAuth)
	direct.Post("/", h.Shares.CreateDirect)
	direct.Get("/received", h.Shares.Received)
	direct.Get("/pending", h.Shares.Pending)
	direct.Post("/:id/accept", h.Shares.Accept)
	direct.Post("/:id/reject", h.Shares.Reject)
	direct.Get("/:id/download", h.Shares.DownloadGrant)

	shares.Delete("/:id", authmw.RequireAuth, h.Shares.Revoke)
	shares.Get("/:token", h.Shares.GetByToken)
	shares.Get("/:token/download", h.Shares.DownloadByToken)
}
