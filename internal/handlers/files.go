package handlers

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
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

type FilesHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Quota   *services.QuotaService
}

func NewFilesHandler(db *gorm.DB, store storage.ObjectStore, quota *services.QuotaService) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store, Quota: quota}
}

func (h *FilesHandler) findOwned(ownerID, fileID uuid.UUID) (*models.File, error) {
	var file models.File
	err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, ownerID).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Upload stores the blob first, then inserts the metadata row and the quota
// reservation in one transaction. If the transaction fails the orphaned blob
// is deleted so the object store cannot accumulate unreferenced objects.
func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	var folderID *uuid.UUID
	if raw := strings.TrimSpace(c.FormValue("folderId")); raw != "" {
		parsed, parseErr := parseUUID(raw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND owner_id = ?", parsed, currentUser.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating folder")
		}
		folderID = &parsed
	}

	usedBytes, err := h.Quota.UsedBytes(currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking storage quota")
	}
	if usedBytes+fileHeader.Size > services.MaxStorageBytes {
		return utils.Error(c, fiber.StatusBadRequest, services.ExceededMessage(usedBytes))
	}

	name := decodeUploadFilename(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	storageKey := fmt.Sprintf("%s/%s%s", currentUser.ID.String(), uuid.New().String(), filepath.Ext(name))

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading uploaded file")
	}
	defer src.Close()

	if err := h.Storage.Upload(c.Context(), storageKey, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	file := models.File{
		Name:       name,
		Size:       fileHeader.Size,
		MimeType:   contentType,
		StorageKey: storageKey,
		OwnerID:    currentUser.ID,
		FolderID:   folderID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		return h.Quota.Reserve(tx, currentUser.ID, file.Size)
	})
	if err != nil {
		if delErr := h.Storage.Delete(c.Context(), storageKey); delErr != nil {
			logger.ErrorWithUser(currentUser.ID.String(), "upload_compensation_failed", delErr, map[string]interface{}{
				"storage_key": storageKey,
			})
		}
		if errors.Is(err, services.ErrQuotaExceeded) {
			return utils.Error(c, fiber.StatusBadRequest, services.ExceededMessage(usedBytes))
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_uploaded", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": file.Name,
		"size":      file.Size,
	})

	return utils.Success(c, fiber.StatusCreated, file)
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	deleted := c.QueryBool("deleted", false)
	query := h.DB.Where("owner_id = ? AND is_deleted = ?", currentUser.ID, deleted)
	if raw := strings.TrimSpace(c.Query("folderId")); raw != "" {
		folderID, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}
		query = query.Where("folder_id = ?", folderID)
	} else {
		query = query.Where("folder_id IS NULL")
	}

	var files []models.File
	if err := query.Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

// Recent returns the newest live files across all folders, capped at 100.
func (h *FilesHandler) Recent(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	limit := c.QueryInt("limit", 10)
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var files []models.File
	if err := h.DB.
		Where("owner_id = ? AND is_deleted = ?", currentUser.ID, false).
		Order("updated_at DESC").
		Limit(limit).
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing recent files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

func (h *FilesHandler) ListTrash(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	page := utils.PageFromQuery(c)
	query := h.DB.Model(&models.File{}).
		Where("owner_id = ? AND is_deleted = ?", currentUser.ID, true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing trash")
	}

	var files []models.File
	if err := query.Order("deleted_at DESC").Scopes(page.Scope).
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing trash")
	}

	return utils.Paginated(c, files, page.Page, page.Limit, total)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsDeleted {
		return utils.Error(c, fiber.StatusBadRequest, "file is in trash")
	}

	obj, err := h.Storage.Download(c.Context(), file.StorageKey)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed retrieving file")
	}

	return sendObject(c, obj, file)
}

type renameFileRequest struct {
	Name string `json:"name"`
}

func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var req renameFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsDeleted {
		return utils.Error(c, fiber.StatusBadRequest, "file is in trash")
	}

	if err := h.DB.Model(&models.File{}).Where("id = ?", file.ID).Update("name", name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming file")
	}

	file.Name = name
	return utils.Success(c, fiber.StatusOK, file)
}

type moveFileRequest struct {
	FolderID *string `json:"folderId"`
}

func (h *FilesHandler) Move(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var req moveFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsDeleted {
		return utils.Error(c, fiber.StatusBadRequest, "file is in trash")
	}

	var folderID *uuid.UUID
	if req.FolderID != nil && strings.TrimSpace(*req.FolderID) != "" {
		parsed, parseErr := parseUUID(*req.FolderID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND owner_id = ?", parsed, currentUser.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating folder")
		}
		folderID = &parsed
	}

	if err := h.DB.Model(&models.File{}).Where("id = ?", file.ID).Update("folder_id", folderID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed moving file")
	}

	file.FolderID = folderID
	return utils.Success(c, fiber.StatusOK, file)
}

// Trash soft-deletes a file. The row keeps its quota bytes but leaves the
// folder tree entirely, so a later folder delete cannot touch it.
func (h *FilesHandler) Trash(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsDeleted {
		return utils.Error(c, fiber.StatusBadRequest, "file is already in trash")
	}

	now := time.Now().UTC()
	if err := h.DB.Model(&models.File{}).Where("id = ?", file.ID).Updates(map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
		"folder_id":  nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed moving file to trash")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_trashed", map[string]interface{}{
		"file_id": file.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file moved to trash"})
}

// Restore brings a trashed file back at the root of the tree. The original
// folder may no longer exist, so restoration never reattaches.
func (h *FilesHandler) Restore(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if !file.IsDeleted {
		return utils.Error(c, fiber.StatusBadRequest, "file is not in trash")
	}

	if err := h.DB.Model(&models.File{}).Where("id = ?", file.ID).Updates(map[string]interface{}{
		"is_deleted": false,
		"deleted_at": nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed restoring file")
	}

	file.IsDeleted = false
	file.DeletedAt = nil
	return utils.Success(c, fiber.StatusOK, file)
}

// DeletePermanently removes the metadata row and releases the quota bytes in
// one transaction, then deletes the blob. Works on live and trashed files
// alike; a prior trip through the trash is not required.
// A blob-delete failure is logged but
// does not fail the request; the row is already gone and the object is
// unreachable garbage.
func (h *FilesHandler) DeletePermanently(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.findOwned(currentUser.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
			return err
		}
		return h.Quota.Release(tx, currentUser.ID, file.Size)
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	if err := h.Storage.Delete(c.Context(), file.StorageKey); err != nil {
		logger.ErrorWithUser(currentUser.ID.String(), "blob_delete_failed", err, map[string]interface{}{
			"file_id":     file.ID.String(),
			"storage_key": file.StorageKey,
		})
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_deleted_permanently", map[string]interface{}{
		"file_id": file.ID.String(),
		"size":    file.Size,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file deleted permanently"})
}

// sendObject is used by share downloads as well; keeping it here avoids each
// handler re-deriving the disposition header.
func sendObject(c *fiber.Ctx, obj io.Reader, file *models.File) error {
	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	return c.SendStream(obj, int(file.Size))
}
