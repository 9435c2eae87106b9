package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/skyvault/backend/internal/middleware"
	"github.com/skyvault/backend/internal/models"
	"github.com/skyvault/backend/internal/services"
	"github.com/skyvault/backend/internal/storage"
	"github.com/skyvault/backend/pkg/logger"
	"github.com/skyvault/backend/pkg/utils"
	"gorm.io/gorm"
)

const presignedDownloadExpiry = time.Hour

type SharesHandler struct {
	DB          *gorm.DB
	Storage     storage.ObjectStore
	Presence    *services.PresenceRegistry
	FrontendURL string
}

func NewSharesHandler(db *gorm.DB, store storage.ObjectStore, presence *services.PresenceRegistry, frontendURL string) *SharesHandler {
	return &SharesHandler{DB: db, Storage: store, Presence: presence, FrontendURL: frontendURL}
}

func (h *SharesHandler) shareURL(token string) string {
	return strings.TrimRight(h.FrontendURL, "/") + "/shares/" + token
}

// Lookup sentinels. The find helpers return these instead of writing the
// response themselves, so callers always get a non-nil error on failure and
// translate it exactly once.
var (
	errInvalidFileID     = errors.New("invalid fileId")
	errFileInTrash       = errors.New("file is in trash")
	errInvalidShareID    = errors.New("invalid share id")
	errGrantNotAddressed = errors.New("grant not addressed to caller")
)

// findOwnedLiveFile loads a file that the user owns and that is not in the
// trash. Shares never attach to trashed files.
func (h *SharesHandler) findOwnedLiveFile(ownerID uuid.UUID, fileIDRaw string) (*models.File, error) {
	fileID, err := parseUUID(fileIDRaw)
	if err != nil {
		return nil, errInvalidFileID
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, ownerID).Error; err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return nil, errFileInTrash
	}
	return &file, nil
}

func writeFileLookupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errInvalidFileID):
		return utils.Error(c, fiber.StatusBadRequest, "invalid fileId")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	case errors.Is(err, errFileInTrash):
		return utils.Error(c, fiber.StatusBadRequest, "file is in trash")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
}

type createLinkRequest struct {
	FileID string `json:"fileId"`
}

// CreateLink mints a public link for a file. Creation is idempotent: if an
// active link already exists for the file it is returned instead of a second
// one being created.
func (h *SharesHandler) CreateLink(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := h.findOwnedLiveFile(currentUser.ID, req.FileID)
	if err != nil {
		return writeFileLookupError(c, err)
	}

	var existing models.PublicLink
	err = h.DB.First(&existing, "file_id = ? AND owner_id = ? AND is_active = ?", file.ID, currentUser.ID, true).Error
	if err == nil {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"share":    existing,
			"shareUrl": h.shareURL(existing.Token),
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing share")
	}

	token, err := generateShareToken()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating share token")
	}

	link := models.PublicLink{
		FileID:   file.ID,
		OwnerID:  currentUser.ID,
		Token:    token,
		IsActive: true,
	}
	if err := h.DB.Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost the race; hand back the winner
			if err := h.DB.First(&link, "file_id = ? AND owner_id = ? AND is_active = ?", file.ID, currentUser.ID, true).Error; err == nil {
				return utils.Success(c, fiber.StatusOK, fiber.Map{
					"share":    link,
					"shareUrl": h.shareURL(link.Token),
				})
			}
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating share")
	}

	logger.InfoWithUser(currentUser.ID.String(), "public_link_created", map[string]interface{}{
		"share_id": link.ID.String(),
		"file_id":  file.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"share":    link,
		"shareUrl": h.shareURL(link.Token),
	})
}

// ListMine returns the caller's active public links and their live direct
// grants, newest first.
func (h *SharesHandler) ListMine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var links []models.PublicLink
	if err := h.DB.Preload("File").
		Where("owner_id = ? AND is_active = ?", currentUser.ID, true).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shares")
	}

	var grants []models.DirectGrant
	if err := h.DB.Preload("File").Preload("Recipient").
		Where("owner_id = ? AND status <> ?", currentUser.ID, models.GrantStatusRejected).
		Order("created_at DESC").
		Find(&grants).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shares")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"publicLinks":  links,
		"directShares": grants,
	})
}

// GetByToken resolves a public link for anyone holding the token. No
// authentication required.
func (h *SharesHandler) GetByToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))

	var link models.PublicLink
	err := h.DB.Preload("File").Preload("Owner").
		First(&link, "token = ? AND is_active = ?", token, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "share not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}
	if link.File.IsDeleted {
		return utils.Error(c, fiber.StatusNotFound, "file no longer available")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"file": fiber.Map{
			"id":       link.File.ID,
			"name":     link.File.Name,
			"size":     link.File.Size,
			"mimeType": link.File.MimeType,
		},
		"owner": fiber.Map{
			"fullName": link.Owner.FullName,
			"email":    link.Owner.Email,
		},
		"createdAt": link.CreatedAt,
	})
}

// DownloadByToken hands out a presigned URL for the shared blob, valid for
// one hour.
func (h *SharesHandler) DownloadByToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))

	var link models.PublicLink
	err := h.DB.Preload("File").
		First(&link, "token = ? AND is_active = ?", token, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "share not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}
	if link.File.IsDeleted {
		return utils.Error(c, fiber.StatusNotFound, "file no longer available")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), link.File.StorageKey, presignedDownloadExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":      url,
		"fileName": link.File.Name,
	})
}

// Revoke deactivates a public link or deletes a direct grant. The id is
// resolved against both variants; only the owner may revoke.
func (h *SharesHandler) Revoke(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}

	var link models.PublicLink
	err = h.DB.First(&link, "id = ?", shareID).Error
	if err == nil {
		if link.OwnerID != currentUser.ID {
			return utils.Error(c, fiber.StatusForbidden, "you do not own this share")
		}
		if err := h.DB.Model(&models.PublicLink{}).Where("id = ?", link.ID).Update("is_active", false).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed revoking share")
		}
		logger.InfoWithUser(currentUser.ID.String(), "public_link_revoked", map[string]interface{}{
			"share_id": link.ID.String(),
		})
		return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "share revoked"})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}

	var grant models.DirectGrant
	err = h.DB.First(&grant, "id = ? AND status <> ?", shareID, models.GrantStatusRejected).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "share not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}
	if grant.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "you do not own this share")
	}

	if err := h.DB.Delete(&models.DirectGrant{}, "id = ?", grant.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed revoking share")
	}

	logger.InfoWithUser(currentUser.ID.String(), "direct_share_revoked", map[string]interface{}{
		"share_id": grant.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "share revoked"})
}

type createDirectRequest struct {
	FileID         string `json:"fileId"`
	RecipientEmail string `json:"recipientEmail"`
}

// CreateDirect addresses a share to another account by email. The grant
// starts pending; if the recipient is online they get a push notification.
func (h *SharesHandler) CreateDirect(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.RecipientEmail))
	if email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "recipientEmail is required")
	}

	file, err := h.findOwnedLiveFile(currentUser.ID, req.FileID)
	if err != nil {
		return writeFileLookupError(c, err)
	}

	var recipient models.User
	if err := h.DB.First(&recipient, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "recipient not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading recipient")
	}
	if recipient.ID == currentUser.ID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot share a file with yourself")
	}

	var count int64
	if err := h.DB.Model(&models.DirectGrant{}).
		Where("file_id = ? AND owner_id = ? AND recipient_id = ? AND status <> ?",
			file.ID, currentUser.ID, recipient.ID, models.GrantStatusRejected).
		Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing share")
	}
	if count > 0 {
		return utils.Error(c, fiber.StatusBadRequest, "File already shared with this user")
	}

	token, err := generateShareToken()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating share token")
	}

	grant := models.DirectGrant{
		FileID:      file.ID,
		OwnerID:     currentUser.ID,
		RecipientID: recipient.ID,
		Token:       token,
		Status:      models.GrantStatusPending,
	}
	if err := h.DB.Create(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusBadRequest, "File already shared with this user")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating share")
	}

	h.Presence.Notify(recipient.ID, "share-received", fiber.Map{
		"shareId":    grant.ID.String(),
		"fileName":   file.Name,
		"ownerName":  currentUser.FullName,
		"ownerEmail": currentUser.Email,
	})

	logger.InfoWithUser(currentUser.ID.String(), "direct_share_created", map[string]interface{}{
		"share_id":     grant.ID.String(),
		"file_id":      file.ID.String(),
		"recipient_id": recipient.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, grant)
}

// Received lists accepted grants addressed to the caller.
func (h *SharesHandler) Received(c *fiber.Ctx) error {
	return h.listForRecipient(c, models.GrantStatusAccepted)
}

// Pending lists grants still awaiting the caller's decision.
func (h *SharesHandler) Pending(c *fiber.Ctx) error {
	return h.listForRecipient(c, models.GrantStatusPending)
}

func (h *SharesHandler) listForRecipient(c *fiber.Ctx, status models.GrantStatus) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var grants []models.DirectGrant
	if err := h.DB.Preload("File").Preload("Owner").
		Where("recipient_id = ? AND status = ?", currentUser.ID, status).
		Order("created_at DESC").
		Find(&grants).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shares")
	}

	return utils.Success(c, fiber.StatusOK, grants)
}

// findGrantForRecipient loads a live grant and enforces that the caller is
// its recipient. Rejected grants are treated as nonexistent.
func (h *SharesHandler) findGrantForRecipient(recipientID uuid.UUID, grantIDRaw string) (*models.DirectGrant, error) {
	grantID, err := parseUUID(grantIDRaw)
	if err != nil {
		return nil, errInvalidShareID
	}

	var grant models.DirectGrant
	err = h.DB.First(&grant, "id = ? AND status <> ?", grantID, models.GrantStatusRejected).Error
	if err != nil {
		return nil, err
	}
	if grant.RecipientID != recipientID {
		return nil, errGrantNotAddressed
	}
	return &grant, nil
}

func writeGrantLookupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errInvalidShareID):
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.Error(c, fiber.StatusNotFound, "share not found")
	case errors.Is(err, errGrantNotAddressed):
		return utils.Error(c, fiber.StatusForbidden, "this share is not addressed to you")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}
}

func (h *SharesHandler) Accept(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	grant, err := h.findGrantForRecipient(currentUser.ID, c.Params("id"))
	if err != nil {
		return writeGrantLookupError(c, err)
	}
	if grant.Status != models.GrantStatusPending {
		return utils.Error(c, fiber.StatusBadRequest, "This share has already been processed")
	}

	if err := h.DB.Model(&models.DirectGrant{}).
		Where("id = ?", grant.ID).
		Update("status", models.GrantStatusAccepted).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed accepting share")
	}

	logger.InfoWithUser(currentUser.ID.String(), "direct_share_accepted", map[string]interface{}{
		"share_id": grant.ID.String(),
	})

	grant.Status = models.GrantStatusAccepted
	return utils.Success(c, fiber.StatusOK, grant)
}

// Reject is terminal: the row stays for audit, but every read path filters
// rejected grants, so the share vanishes for owner and recipient alike.
func (h *SharesHandler) Reject(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	grant, err := h.findGrantForRecipient(currentUser.ID, c.Params("id"))
	if err != nil {
		return writeGrantLookupError(c, err)
	}
	if grant.Status != models.GrantStatusPending {
		return utils.Error(c, fiber.StatusBadRequest, "This share has already been processed")
	}

	if err := h.DB.Model(&models.DirectGrant{}).
		Where("id = ?", grant.ID).
		Update("status", models.GrantStatusRejected).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed rejecting share")
	}

	logger.InfoWithUser(currentUser.ID.String(), "direct_share_rejected", map[string]interface{}{
		"share_id": grant.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "share rejected"})
}

// DownloadGrant hands the accepted recipient a presigned URL for the shared
// blob.
func (h *SharesHandler) DownloadGrant(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	grant, err := h.findGrantForRecipient(currentUser.ID, c.Params("id"))
	if err != nil {
		return writeGrantLookupError(c, err)
	}
	if grant.Status != models.GrantStatusAccepted {
		return utils.Error(c, fiber.StatusBadRequest, "share not accepted")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", grant.FileID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsDeleted {
		return utils.Error(c, fiber.StatusNotFound, "file no longer available")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), file.StorageKey, presignedDownloadExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	logger.InfoWithUser(currentUser.ID.String(), "direct_share_downloaded", map[string]interface{}{
		"share_id": grant.ID.String(),
		"file_id":  file.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":      url,
		"fileName": file.Name,
	})
}
