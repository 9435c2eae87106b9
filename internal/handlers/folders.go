package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/skyvault/backend/internal/middleware"
	"github.com/skyvault/backend/internal/models"
	"github.com/skyvault/backend/pkg/logger"
	"github.com/skyvault/backend/pkg/utils"
	"gorm.io/gorm"
)

type FoldersHandler struct {
	DB *gorm.DB
}

func NewFoldersHandler(db *gorm.DB) *FoldersHandler {
	return &FoldersHandler{DB: db}
}

// findOwned loads a folder scoped to its owner. Ownership failures report
// NotFound rather than Forbidden so foreign folder ids are not confirmed to
// exist.
func (h *FoldersHandler) findOwned(ownerID, folderID uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	err := h.DB.First(&folder, "id = ? AND owner_id = ?", folderID, ownerID).Error
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var parentID *uuid.UUID
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parsed, err := parseUUID(*req.ParentID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
		}
		if _, err := h.findOwned(currentUser.ID, parsed); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "parent folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating parent folder")
		}
		parentID = &parsed
	}

	duplicate, err := h.nameTaken(currentUser.ID, parentID, name, nil)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking folder name")
	}
	if duplicate {
		return utils.Error(c, fiber.StatusConflict, "folder with this name already exists")
	}

	folder := models.Folder{
		Name:     name,
		OwnerID:  currentUser.ID,
		ParentID: parentID,
	}

	if err := h.DB.Create(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "folder with this name already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_created", map[string]interface{}{
		"folder_id":   folder.ID.String(),
		"folder_name": folder.Name,
		"parent_id":   parentID,
	})

	return utils.Success(c, fiber.StatusCreated, folder)
}

func (h *FoldersHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := h.DB.Where("owner_id = ?", currentUser.ID)
	parentIDRaw := strings.TrimSpace(c.Query("parentId"))
	if parentIDRaw != "" {
		parentID, err := parseUUID(parentIDRaw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
		}
		query = query.Where("parent_id = ?", parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var folders []models.Folder
	if err := query.Order("name ASC").Find(&folders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing folders")
	}

	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	folder, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
	}

	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Contents(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	folder, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
	}

	var subfolders []models.Folder
	if err := h.DB.
		Where("owner_id = ? AND parent_id = ?", currentUser.ID, folder.ID).
		Order("name ASC").
		Find(&subfolders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing subfolders")
	}

	var files []models.File
	if err := h.DB.
		Where("owner_id = ? AND folder_id = ? AND is_deleted = ?", currentUser.ID, folder.ID, false).
		Order("name ASC").
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"folder":     folder,
		"subfolders": subfolders,
		"files":      files,
	})
}

// Breadcrumb walks parent links upward and returns the root-first chain
// ending at the requested folder. The walk stops silently at the first
// missing or foreign ancestor instead of erroring, so a damaged chain yields
// a partial trail.
func (h *FoldersHandler) Breadcrumb(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	target, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed building breadcrumb")
	}

	// Ancestors that vanished mid-walk just truncate the trail; only the
	// requested folder itself has to exist.
	trail := []models.Folder{*target}
	current := target.ParentID
	for current != nil {
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND owner_id = ?", *current, currentUser.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed building breadcrumb")
		}
		trail = append([]models.Folder{folder}, trail...)
		current = folder.ParentID
	}

	return utils.Success(c, fiber.StatusOK, trail)
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

func (h *FoldersHandler) Rename(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req renameFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	folder, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
	}

	duplicate, err := h.nameTaken(currentUser.ID, folder.ParentID, name, &folder.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking folder name")
	}
	if duplicate {
		return utils.Error(c, fiber.StatusConflict, "folder with this name already exists")
	}

	if err := h.DB.Model(&models.Folder{}).Where("id = ?", folder.ID).Update("name", name).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "folder with this name already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming folder")
	}

	folder.Name = name
	return utils.Success(c, fiber.StatusOK, folder)
}

type moveFolderRequest struct {
	ParentID *string `json:"parentId"`
}

func (h *FoldersHandler) Move(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req moveFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
	}

	var newParentID *uuid.UUID
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parsed, parseErr := parseUUID(*req.ParentID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
		}
		if _, err := h.findOwned(currentUser.ID, parsed); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "parent folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating parent folder")
		}
		newParentID = &parsed

		cyclic, cycleErr := h.wouldCreateCycle(currentUser.ID, folder.ID, parsed)
		if cycleErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating move")
		}
		if cyclic {
			return utils.Error(c, fiber.StatusBadRequest, "cannot move folder to its own subfolder")
		}
	}

	duplicate, err := h.nameTaken(currentUser.ID, newParentID, folder.Name, &folder.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking folder name")
	}
	if duplicate {
		return utils.Error(c, fiber.StatusConflict, "folder with this name already exists in destination")
	}

	if err := h.DB.Model(&models.Folder{}).Where("id = ?", folder.ID).Update("parent_id", newParentID).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "folder with this name already exists in destination")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed moving folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_moved", map[string]interface{}{
		"folder_id":     folder.ID.String(),
		"new_parent_id": newParentID,
	})

	folder.ParentID = newParentID
	return utils.Success(c, fiber.StatusOK, folder)
}

// Delete removes the folder and its whole subtree. Files anywhere in the
// subtree are soft-deleted into the trash and detached from the tree; folder
// rows are removed children-first. The entire cascade runs inside one
// transaction so a mid-operation failure cannot leave a half-deleted subtree.
func (h *FoldersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	folder, err := h.findOwned(currentUser.ID, folderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
	}

	subtree, err := h.collectSubtree(currentUser.ID, folder.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed collecting folder subtree")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&models.File{}).
			Where("owner_id = ? AND folder_id IN ?", currentUser.ID, subtree).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"folder_id":  nil,
			}).Error; err != nil {
			return err
		}

		// subtree is ordered parents-first; delete in reverse so every
		// folder's children are gone before the folder itself.
		for i := len(subtree) - 1; i >= 0; i-- {
			if err := tx.Delete(&models.Folder{}, "id = ?", subtree[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_deleted", map[string]interface{}{
		"folder_id":     folder.ID.String(),
		"folders_total": len(subtree),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "folder deleted"})
}

// wouldCreateCycle reports whether targetParentID sits inside folderID's
// subtree (itself included) by walking the ancestor chain upward.
func (h *FoldersHandler) wouldCreateCycle(ownerID, folderID, targetParentID uuid.UUID) (bool, error) {
	current := &targetParentID
	for current != nil {
		if *current == folderID {
			return true, nil
		}

		var folder models.Folder
		err := h.DB.Select("id", "parent_id").First(&folder, "id = ? AND owner_id = ?", *current, ownerID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		current = folder.ParentID
	}
	return false, nil
}

// collectSubtree returns the folder ids of the subtree rooted at folderID
// using an explicit worklist, ordered parents-first. Iteration avoids
// recursion-depth limits on deep trees.
func (h *FoldersHandler) collectSubtree(ownerID, folderID uuid.UUID) ([]uuid.UUID, error) {
	ordered := make([]uuid.UUID, 0, 1)
	queue := []uuid.UUID{folderID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, id)

		var children []models.Folder
		if err := h.DB.Select("id").
			Where("owner_id = ? AND parent_id = ?", ownerID, id).
			Find(&children).Error; err != nil {
			return nil, err
		}
		for _, child := range children {
			queue = append(queue, child.ID)
		}
	}

	return ordered, nil
}

func (h *FoldersHandler) nameTaken(ownerID uuid.UUID, parentID *uuid.UUID, name string, excludeID *uuid.UUID) (bool, error) {
	query := h.DB.Model(&models.Folder{}).Where("owner_id = ? AND name = ?", ownerID, name)
	if parentID != nil {
		query = query.Where("parent_id = ?", *parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
