package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

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

type UsersHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
}

func NewUsersHandler(db *gorm.DB, store storage.ObjectStore) *UsersHandler {
	return &UsersHandler{DB: db, Storage: store}
}

// Stats summarizes the caller's account: live object counts and the quota
// ledger.
func (h *UsersHandler) Stats(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var totalFiles int64
	if err := h.DB.Model(&models.File{}).
		Where("owner_id = ? AND is_deleted = ?", currentUser.ID, false).
		Count(&totalFiles).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting files")
	}

	var totalFolders int64
	if err := h.DB.Model(&models.Folder{}).
		Where("owner_id = ?", currentUser.ID).
		Count(&totalFolders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting folders")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalFiles":   totalFiles,
		"totalFolders": totalFolders,
		"usedStorage":  currentUser.UsedStorage,
		"maxStorage":   services.MaxStorageBytes,
	})
}

var allowedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

func (h *UsersHandler) UploadAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "avatar file is required")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedAvatarTypes[contentType] {
		return utils.Error(c, fiber.StatusBadRequest, "avatar must be a jpeg, png or webp image")
	}
	if fileHeader.Size > 5*1024*1024 {
		return utils.Error(c, fiber.StatusBadRequest, "avatar must be smaller than 5MB")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading avatar")
	}
	defer src.Close()

	objectName := fmt.Sprintf("avatars/%s/%s%s", currentUser.ID.String(), uuid.New().String(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing avatar")
	}

	previous := currentUser.Avatar
	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Update("avatar", objectName).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating avatar")
	}

	if previous != nil && *previous != "" {
		if err := h.Storage.Delete(c.Context(), *previous); err != nil {
			logger.WarnWithUser(currentUser.ID.String(), "avatar_cleanup_failed", map[string]interface{}{
				"object_name": *previous,
			})
		}
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), objectName, presignedDownloadExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating avatar url")
	}

	currentUser.Avatar = &objectName
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"avatar": objectName,
		"url":    url,
	})
}

func (h *UsersHandler) AvatarURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if currentUser.Avatar == nil || strings.TrimSpace(*currentUser.Avatar) == "" {
		return utils.Error(c, fiber.StatusNotFound, "no avatar set")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), *currentUser.Avatar, presignedDownloadExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating avatar url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *UsersHandler) RemoveAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if currentUser.Avatar == nil || *currentUser.Avatar == "" {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "no avatar set"})
	}

	objectName := *currentUser.Avatar
	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Update("avatar", nil).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing avatar")
	}

	if err := h.Storage.Delete(c.Context(), objectName); err != nil {
		logger.WarnWithUser(currentUser.ID.String(), "avatar_cleanup_failed", map[string]interface{}{
			"object_name": objectName,
		})
	}

	currentUser.Avatar = nil
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "avatar removed"})
}
