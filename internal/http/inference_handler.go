package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bioage/internal/service"
)

// Mensajes fijos cuando el artefacto de scoring no está cargado.
const (
	predictModelMissingDetail  = "Model file not found. Please train the model first."
	simulateModelMissingDetail = "Model not loaded"
)

// maxBodyBytes acota el tamaño del body de /predict y /simulate.
const maxBodyBytes = 1 << 20

// InferenceHandler expone el pipeline de edad biológica por HTTP.
type InferenceHandler struct {
	logger      *zap.Logger
	svc         *service.InferenceService
	serviceName string
}

// NewInferenceHandler crea una instancia de InferenceHandler con dependencias necesarias.
func NewInferenceHandler(logger *zap.Logger, svc *service.InferenceService, serviceName string) *InferenceHandler {
	return &InferenceHandler{
		logger:      logger,
		svc:         svc,
		serviceName: serviceName,
	}
}

// Root maneja GET /.
func (h *InferenceHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.serviceName + " is running"})
}

// Predict maneja POST /predict.
func (h *InferenceHandler) Predict(c *gin.Context) {
	body, status, detail := h.readBody(c)
	if status != 0 {
		h.rejectPredict(c, status, detail)
		return
	}

	result, err := h.svc.Predict(c.Request.Context(), RequestID(c), body)
	if err != nil {
		h.writeError(c, err, predictModelMissingDetail)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Simulate maneja POST /simulate.
func (h *InferenceHandler) Simulate(c *gin.Context) {
	body, status, detail := h.readBody(c)
	if status != 0 {
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	result, err := h.svc.Simulate(c.Request.Context(), body)
	if err != nil {
		h.writeError(c, err, simulateModelMissingDetail)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readBody devuelve status 0 si el body se pudo leer completo.
func (h *InferenceHandler) readBody(c *gin.Context) ([]byte, int, string) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "request body too large"
		}
		h.logger.Warn("read request body failed", zap.Error(err))
		return nil, http.StatusBadRequest, "could not read request body"
	}
	return body, 0, ""
}

// rejectPredict responde un /predict que no llegó al pipeline y deja su traza en el audit log.
func (h *InferenceHandler) rejectPredict(c *gin.Context, status int, detail string) {
	h.svc.RejectPredict(c.Request.Context(), RequestID(c), detail)
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func (h *InferenceHandler) writeError(c *gin.Context, err error, modelMissingDetail string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": "Validation Error: " + vErr.Error(),
			"errors": vErr.Violations,
		})
	case errors.Is(err, service.ErrModelUnavailable):
		h.logger.Error("model unavailable", zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": modelMissingDetail})
	default:
		h.logger.Error("inference failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	}
}
