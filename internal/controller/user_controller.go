package controller

import (
	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const maxUploadSize = 50 << 20

// UserController 当前用户的资料与媒体上传
type UserController struct {
	UserService *service.UserService
	Storage     *service.StorageService
}

func NewUserController(userService *service.UserService, storage *service.StorageService) *UserController {
	return &UserController{
		UserService: userService,
		Storage:     storage,
	}
}

// GetProfile godoc
// @Summary 获取个人资料
// @Tags 用户
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/profile [get]
func (ctrl *UserController) GetProfile(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	user, err := ctrl.UserService.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, user)
}

// UpdateProfile godoc
// @Summary 更新个人资料
// @Description 只更新请求中出现的字段
// @Tags 用户
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param   request body service.ProfileUpdate true "资料字段"
// @Success 200 {object} util.Response{data=model.User}
// @Failure 409 {object} util.Response "用户名已被占用"
// @Router /api/profile [put]
func (ctrl *UserController) UpdateProfile(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	user, err := ctrl.UserService.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, user)
}

// UploadMedia godoc
// @Summary 上传媒体文件
// @Description 返回不透明的媒体引用，可用于头像或媒体帖子
// @Tags 用户
// @Accept mpfd
// @Produce json
// @Security ApiKeyAuth
// @Param   file formData file true "图片或视频"
// @Success 201 {object} util.Response
// @Router /api/media [post]
func (ctrl *UserController) UploadMedia(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	ref, err := uploadFormFile(c, ctrl.Storage, claims.UserID, "file")
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Created(c, gin.H{"ref": ref})
}

// UploadAvatar godoc
// @Summary 上传头像
// @Tags 用户
// @Accept mpfd
// @Produce json
// @Security ApiKeyAuth
// @Param   profilePhoto formData file true "头像图片"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/profile/upload-photo [post]
func (ctrl *UserController) UploadAvatar(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	ref, err := uploadFormFile(c, ctrl.Storage, claims.UserID, "profilePhoto")
	if err != nil {
		util.HandleError(c, err)
		return
	}
	user, err := ctrl.UserService.UpdateProfile(c.Request.Context(), claims.UserID, service.ProfileUpdate{Avatar: &ref})
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, user)
}

func uploadFormFile(c *gin.Context, storage *service.StorageService, userID uint, field string) (string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", util.Invalid("missing file field %q", field)
	}
	if fileHeader.Size > maxUploadSize {
		return "", util.Invalid("file exceeds %d MB", maxUploadSize>>20)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", util.Invalid("unreadable upload: %v", err)
	}
	defer file.Close()

	return storage.UploadMedia(c.Request.Context(), userID, fileHeader.Filename, file, fileHeader.Size)
}
