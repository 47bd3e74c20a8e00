package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strconv"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"webdsl/internal/model"
	"webdsl/internal/repository"
	"webdsl/internal/service"
	"webdsl/internal/storage"
)

type createDeploymentRequest struct {
	ModelStr string `json:"model_str"`
	IsPublic bool   `json:"is_public"`
	UserID   string `json:"user_id"`
}

type killRequest struct {
	UserID string `json:"user_id"`
}

// writeDeploymentError translates service errors into the error envelope.
func writeDeploymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrIDRequired),
		errors.Is(err, service.ErrUserRequired),
		errors.Is(err, service.ErrModelRequired),
		errors.Is(err, service.ErrInvalidStatus):
		return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "deployment not found")
	case errors.Is(err, service.ErrModelNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "model source not found")
	case errors.Is(err, service.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "user not authorized for this deployment")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

var (
	errInvalidLimit  = errors.New("invalid limit")
	errInvalidOffset = errors.New("invalid offset")
)

func pageParams(c *fiber.Ctx) (int, int, error) {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return 0, 0, errInvalidLimit
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, errInvalidOffset
	}
	return limit, offset, nil
}

// CreateDeployment stores a model and queues it for the deploy agent.
func CreateDeployment(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createDeploymentRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		res, err := svc.Create(c.UserContext(), service.CreateDeploymentInput{
			ModelStr: req.ModelStr,
			IsPublic: req.IsPublic,
			UserID:   req.UserID,
		})
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
}

// CreateDeploymentFromFile deploys a model uploaded as multipart/form-data. The
// model comes in one or more model_files parts (or a single file part); with several
// files main_filename picks the one to deploy.
func CreateDeploymentFromFile(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		files := append(append([]*multipart.FileHeader{}, form.File["model_files"]...), form.File["file"]...)
		if len(files) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		fh := mainModelFile(files, c.FormValue("main_filename"))
		if fh == nil {
			return writeError(c, fiber.StatusBadRequest, "MAIN_FILE_AMBIGUOUS", "main file not specified or ambiguous")
		}

		isPublic := false
		if v := c.FormValue("is_public"); v != "" {
			if isPublic, err = strconv.ParseBool(v); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_REQUEST", "is_public must be a boolean")
			}
		}

		src, err := readUpload(fh)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		if !utf8.Valid(src) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_MODEL", "model file must be UTF-8 text")
		}

		res, err := svc.Create(c.UserContext(), service.CreateDeploymentInput{
			ModelStr: string(src),
			IsPublic: isPublic,
			UserID:   c.FormValue("user_id"),
		})
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// mainModelFile returns the single uploaded file, or the one named main, or nil.
func mainModelFile(files []*multipart.FileHeader, main string) *multipart.FileHeader {
	if main == "" {
		if len(files) == 1 {
			return files[0]
		}
		return nil
	}
	for _, fh := range files {
		if fh.Filename == main {
			return fh
		}
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func listDeployments(svc service.DeploymentService, filter func(*fiber.Ctx) repository.DeploymentFilter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, err := pageParams(c)
		switch {
		case errors.Is(err, errInvalidLimit):
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		case errors.Is(err, errInvalidOffset):
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		res, err := svc.List(c.UserContext(), filter(c), limit, offset)
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(res)
	}
}

// ListDeployments lists every deployment, optionally narrowed by ?status=.
func ListDeployments(svc service.DeploymentService) fiber.Handler {
	return listDeployments(svc, func(c *fiber.Ctx) repository.DeploymentFilter {
		return repository.DeploymentFilter{Status: c.Query("status")}
	})
}

// ListPublicDeployments lists running public deployments. It needs no API key.
func ListPublicDeployments(svc service.DeploymentService) fiber.Handler {
	return listDeployments(svc, func(*fiber.Ctx) repository.DeploymentFilter {
		return repository.DeploymentFilter{Status: model.StatusRunning, PublicOnly: true}
	})
}

// ListUserDeployments lists the deployments of :user_id.
func ListUserDeployments(svc service.DeploymentService) fiber.Handler {
	return listDeployments(svc, func(c *fiber.Ctx) repository.DeploymentFilter {
		return repository.DeploymentFilter{UserID: c.Params("user_id")}
	})
}

// GetDeployment returns one deployment.
func GetDeployment(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Get(c.UserContext(), c.Params("uid"))
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(d)
	}
}

// UpdateDeploymentStatus is the deploy agent callback.
func UpdateDeploymentStatus(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.StatusReport
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		d, err := svc.UpdateStatus(c.UserContext(), c.Params("uid"), req)
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(d)
	}
}

// KillDeployment marks a deployment killed on behalf of its owner.
func KillDeployment(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req killRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		msg, err := svc.Kill(c.UserContext(), c.Params("uid"), req.UserID)
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(fiber.Map{"message": msg})
	}
}

// KillAllDeployments kills every deployment of :user_id.
func KillAllDeployments(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.KillAll(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(res)
	}
}

// DeploymentModelURL returns a presigned URL of the deployment's model source. With
// ?download=1 it streams the model itself.
func DeploymentModelURL(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.QueryBool("download") {
			return sendModel(c, svc)
		}
		url, err := svc.ModelURL(c.UserContext(), c.Params("uid"))
		if err != nil {
			return writeDeploymentError(c, err)
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

func sendModel(c *fiber.Ctx, svc service.DeploymentService) error {
	uid := c.Params("uid")
	rc, info, err := svc.OpenModel(c.UserContext(), uid)
	if err != nil {
		return writeDeploymentError(c, err)
	}

	ct := info.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Set(fiber.HeaderContentType, ct)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", path.Base(storage.ModelKey(uid))))

	size := int(info.Size)
	if info.Size <= 0 {
		size = -1
	}
	// fasthttp closes rc once the body is written
	return c.SendStream(rc, size)
}

// DeleteDeployment removes a deployment and its model source.
func DeleteDeployment(svc service.DeploymentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("uid")); err != nil {
			return writeDeploymentError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
