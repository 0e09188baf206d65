package handlers

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wanotify/backend/internal/dispatch"
	"github.com/wanotify/backend/internal/http/dto"
	"github.com/wanotify/backend/internal/middleware"
	"github.com/wanotify/backend/internal/repositories"
	"github.com/wanotify/backend/internal/services"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	dispatchService *services.DispatchService
	log             *zap.Logger
}

func NewCampaignHandler(dispatchService *services.DispatchService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{dispatchService: dispatchService, log: log}
}

// CreateCampaign accepts the multipart upload, runs the synchronous pipeline
// and answers with the queued campaign. The CSV lives only in the job payload
// once this handler returns; the upload buffer is gone either way.
func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	templateSid := c.FormValue("templateSid")
	if templateSid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "templateSid es requerido"})
	}

	fileHeader, err := c.FormFile("csvFile")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "Archivo CSV requerido"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "No se pudo leer el archivo CSV"})
	}
	csvBytes, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "No se pudo leer el archivo CSV"})
	}

	userID := middleware.GetUserID(c)
	result, err := h.dispatchService.CreateCampaign(c.Context(), userID, services.CreateCampaignInput{
		Name:        c.FormValue("name"),
		TemplateKey: templateSid,
		CSV:         csvBytes,
		RawMappings: c.FormValue("variableMappings"),
		RawDefaults: c.FormValue("defaultValues"),
	})
	if err != nil {
		return h.createError(c, err)
	}

	return c.JSON(dto.CreateCampaignResponse{
		Success: true,
		Message: "Campaña creada y encolada exitosamente",
		Campaign: dto.CampaignInfo{
			ID:                 result.Campaign.ID.String(),
			Name:               result.Campaign.Name,
			Status:             result.Campaign.Status,
			TotalContacts:      result.Campaign.TotalContacts,
			Template:           result.Template.Name,
			JobID:              result.JobID,
			EstimatedStartTime: result.EstimatedStartTime,
			Priority:           result.Priority,
		},
	})
}

func (h *CampaignHandler) createError(c *fiber.Ctx, err error) error {
	var quotaErr *dispatch.QuotaError
	var csvErr *csv.ParseError
	switch {
	case errors.As(err, &quotaErr):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: "Límite de mensajes excedido",
			Details: dto.QuotaDetails{
				Required:      quotaErr.Required,
				Available:     quotaErr.Available,
				PlanType:      quotaErr.PlanType,
				MessagesUsed:  quotaErr.MessagesUsed,
				MessagesLimit: quotaErr.MessagesLimit,
				Suggestion:    "Actualiza tu plan para enviar más mensajes",
			},
		})
	case errors.Is(err, services.ErrTemplateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Plantilla no encontrada"})
	case errors.Is(err, services.ErrTemplateNoSid):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "La plantilla no tiene identificador de contenido"})
	case errors.Is(err, dispatch.ErrNoContacts):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "El archivo CSV no contiene contactos válidos"})
	case errors.As(err, &csvErr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "El archivo CSV no es válido"})
	default:
		h.log.Error("create campaign failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Error interno del servidor"})
	}
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter := repositories.CampaignFilter{Limit: 20}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	campaigns, err := h.dispatchService.ListCampaigns(c.Context(), userID, filter)
	if err != nil {
		h.log.Error("list campaigns failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Error interno del servidor"})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: campaigns})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "id de campaña inválido"})
	}

	campaign, err := h.dispatchService.GetCampaign(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrCampaignNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Campaña no encontrada"})
		}
		h.log.Error("get campaign failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Error interno del servidor"})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: campaign})
}

func (h *CampaignHandler) PauseCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "id de campaña inválido"})
	}

	campaign, err := h.dispatchService.Pause(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrCampaignNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Campaña no encontrada"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "La campaña no se puede pausar"})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: campaign})
}

func (h *CampaignHandler) ResumeCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "id de campaña inválido"})
	}

	campaign, err := h.dispatchService.Resume(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrCampaignNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Campaña no encontrada"})
		}
		if errors.Is(err, services.ErrCampaignDataGone) {
			return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse{Error: "Los datos de la campaña ya no están disponibles"})
		}
		h.log.Warn("resume failed", zap.String("campaign_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "La campaña no se puede reanudar"})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: campaign})
}

func (h *CampaignHandler) GetDelivery(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "id de campaña inválido"})
	}

	report, err := h.dispatchService.Delivery(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrCampaignNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Campaña no encontrada"})
		}
		h.log.Error("delivery report failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Error interno del servidor"})
	}
	return c.JSON(dto.SuccessResponse{Success: true, Data: report})
}
