package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/auth"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/service"
)

const DefaultMaxUpload = 10 << 20

type Handler struct {
	analyses  *service.AnalysisService
	accounts  *service.AccountService
	resolver  auth.Resolver
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(
	analyses *service.AnalysisService,
	accounts *service.AccountService,
	resolver auth.Resolver,
	maxUpload int64,
	logger *zap.Logger,
) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Handler{
		analyses:  analyses,
		accounts:  accounts,
		resolver:  resolver,
		maxUpload: maxUpload,
		logger:    logger.Named("http"),
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "API OK"})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Predict takes a multipart upload: the radiograph under "file" plus the
// patient fields. Set explain=false to skip the heatmap.
func (h *Handler) Predict(c *gin.Context) {
	const op = "handlers.Predict"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			err = errors.New("no image file provided, use 'file' as the form field name")
		}
		h.respondError(c, apperr.E(apperr.InvalidInput, op, err))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, op, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, op, err))
		return
	}

	age, err := strconv.Atoi(strings.TrimSpace(c.PostForm("age")))
	if err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, op, errors.New("age must be an integer")))
		return
	}
	explain := true
	if v := c.PostForm("explain"); v != "" {
		explain, err = strconv.ParseBool(v)
		if err != nil {
			h.respondError(c, apperr.E(apperr.InvalidInput, op, errors.New("explain must be a boolean")))
			return
		}
	}

	user := currentUser(c)
	h.logger.Debug("upload received",
		zap.String("file", header.Filename),
		zap.Int64("size", header.Size),
		zap.Int64("userID", user.ID),
	)

	res, err := h.analyses.Submit(c.Request.Context(), service.Submission{
		UserID:   user.ID,
		FileName: header.Filename,
		Image:    data,
		Explain:  explain,
		Patient: domain.Patient{
			LastName:  strings.TrimSpace(c.PostForm("last_name")),
			FirstName: strings.TrimSpace(c.PostForm("first_name")),
			Age:       age,
			Sex:       strings.TrimSpace(c.PostForm("sex")),
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c *gin.Context) {
	entries, err := h.analyses.History(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) AddHistory(c *gin.Context) {
	var rec service.ManualRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, "handlers.AddHistory", err))
		return
	}

	id, err := h.analyses.Record(c.Request.Context(), currentUser(c).ID, rec)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Saved successfully", "history_id": id})
}

func (h *Handler) Register(c *gin.Context) {
	var reg service.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, "handlers.Register", err))
		return
	}

	tok, err := h.accounts.Register(c.Request.Context(), reg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if tok == nil {
		c.JSON(http.StatusCreated, gin.H{"message": "User registered"})
		return
	}
	c.JSON(http.StatusOK, tok)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var cred credentials
	if err := c.ShouldBindJSON(&cred); err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, "handlers.Login", err))
		return
	}

	tok, err := h.accounts.Login(c.Request.Context(), cred.Username, cred.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var p domain.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, "handlers.UpdateProfile", err))
		return
	}

	u, err := h.accounts.UpdateProfile(c.Request.Context(), currentUser(c), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user": domain.Profile{
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
		},
	})
}

type passwordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req passwordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.E(apperr.InvalidInput, "handlers.ChangePassword", err))
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// respondError maps the error kind to a status. Client errors carry their
// message; everything else is logged and answered opaquely.
func (h *Handler) respondError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "upload too large"})
		return
	}

	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, gin.H{"detail": "internal server error"})
		return
	}

	c.AbortWithStatusJSON(status, gin.H{"detail": clientMessage(err)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidImage, apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func clientMessage(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case apperr.Unauthenticated:
		if errors.Is(err, auth.ErrBadCredentials) {
			return auth.ErrBadCredentials.Error()
		}
		return "could not validate credentials"
	case apperr.InvalidImage:
		return "invalid image"
	case apperr.NotFound:
		return "not found"
	case apperr.Conflict:
		return "already exists"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}
