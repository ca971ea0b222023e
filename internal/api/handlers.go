package api

import (
	"errors"
	"io"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/ledger"
	"github.com/gmsas95/dosewise-cli/internal/medication"
)

const dateLayout = "2006-01-02"

// statusFor maps application error codes to HTTP statuses.
func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return fiber.StatusBadRequest
	case apperrors.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrPinNotSet), errors.Is(err, apperrors.ErrPinMismatch):
		return fiber.StatusUnauthorized
	case apperrors.GetCode(err) == apperrors.ErrScanUnavailable.Code:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  apperrors.GetCode(err),
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.core.Registry.List()
	if err != nil {
		return s.fail(c, err)
	}

	out := make([]fiber.Map, 0, len(meds))
	for i := range meds {
		out = append(out, s.medicationView(&meds[i]))
	}
	return c.JSON(out)
}

func (s *Server) handleAddMedication(c *fiber.Ctx) error {
	var med medication.Medication
	if err := c.BodyParser(&med); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	saved, err := s.core.AddMedication(c.Context(), med)
	if err != nil {
		// The medication persists even when scheduling fails; surface the
		// record with a warning instead of an error status.
		if saved != nil && apperrors.IsScheduling(err) {
			view := s.medicationView(saved)
			view["warning"] = err.Error()
			return c.Status(201).JSON(view)
		}
		return s.fail(c, err)
	}
	return c.Status(201).JSON(s.medicationView(saved))
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.core.Registry.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.medicationView(med))
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var med medication.Medication
	if err := c.BodyParser(&med); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	med.ID = c.Params("id")

	saved, err := s.core.UpdateMedication(c.Context(), med)
	if err != nil {
		if saved != nil && apperrors.IsScheduling(err) {
			view := s.medicationView(saved)
			view["warning"] = err.Error()
			return c.JSON(view)
		}
		return s.fail(c, err)
	}
	return c.JSON(s.medicationView(saved))
}

func (s *Server) handleRemoveMedication(c *fiber.Ctx) error {
	if err := s.core.RemoveMedication(c.Context(), c.Params("id")); err != nil {
		if apperrors.IsScheduling(err) {
			s.logger.Warn("Reminder cancellation failed after delete", zap.Error(err))
			return c.SendStatus(204)
		}
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleRecordRefill(c *fiber.Ctx) error {
	med, err := s.core.RecordRefill(c.Context(), c.Params("id"))
	if err != nil {
		if med != nil && apperrors.IsScheduling(err) {
			view := s.medicationView(med)
			view["warning"] = err.Error()
			return c.JSON(view)
		}
		return s.fail(c, err)
	}
	return c.JSON(s.medicationView(med))
}

func (s *Server) handleSupplyStatus(c *fiber.Ctx) error {
	med, err := s.core.Registry.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"medication_id": med.ID,
		"current":       med.CurrentSupply,
		"total":         med.TotalSupply,
		"percentage":    medication.SupplyPercentage(med),
		"status":        medication.Status(med),
	})
}

func (s *Server) handleDoseStatus(c *fiber.Ctx) error {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
	}

	status, err := s.core.Adherence.StatusForMedicationOnDate(c.Params("id"), date)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"medication_id": c.Params("id"),
		"date":          date.Format(dateLayout),
		"status":        status,
	})
}

func (s *Server) handleListDeliveries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	rows, err := s.core.Store.ListDeliveries(c.Params("id"), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) medicationView(med *medication.Medication) fiber.Map {
	return fiber.Map{
		"medication":     med,
		"supply_status":  medication.Status(med),
		"supply_percent": medication.SupplyPercentage(med),
		"reminder_state": s.core.Scheduler.StateFor(med.ID),
	}
}

// ==================== Doses ====================

func (s *Server) handleRecordDose(c *fiber.Ctx) error {
	var req struct {
		MedicationID string     `json:"medication_id"`
		Taken        *bool      `json:"taken"`
		Timestamp    *time.Time `json:"timestamp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.MedicationID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "medication_id is required"})
	}

	taken := true
	if req.Taken != nil {
		taken = *req.Taken
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	event, err := s.core.RecordDose(c.Context(), req.MedicationID, taken, ts)
	if err != nil {
		if event != nil && apperrors.IsScheduling(err) {
			return c.Status(201).JSON(fiber.Map{"event": event, "warning": err.Error()})
		}
		return s.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"event": event})
}

func (s *Server) handleListDoses(c *fiber.Ctx) error {
	filter := ledger.Filter{MedicationID: c.Query("medication_id")}

	if raw := c.Query("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "from must be YYYY-MM-DD"})
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "to must be YYYY-MM-DD"})
		}
		filter.To = to
	}

	events, err := s.core.Ledger.List(filter)
	if err != nil {
		return s.fail(c, err)
	}

	// Newest first for display; the ledger itself keeps insertion order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	type view struct {
		ledger.DoseEvent
		MedicationName string `json:"medication_name"`
	}
	out := make([]view, 0, len(events))
	for _, e := range events {
		out = append(out, view{
			DoseEvent:      e,
			MedicationName: s.core.Adherence.MedicationLabel(e.MedicationID),
		})
	}
	return c.JSON(out)
}

// ==================== Progress ====================

func (s *Server) handleProgress(c *fiber.Ctx) error {
	date := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
		}
		date = parsed
	}

	progress, err := s.core.Adherence.ProgressForDay(date)
	if err != nil {
		return s.fail(c, err)
	}

	meds, err := s.core.Registry.List()
	if err != nil {
		return s.fail(c, err)
	}
	perMed := make([]fiber.Map, 0, len(meds))
	for i := range meds {
		med := &meds[i]
		if !med.ActiveOn(date) {
			continue
		}
		status, err := s.core.Adherence.StatusForMedicationOnDate(med.ID, date)
		if err != nil {
			return s.fail(c, err)
		}
		perMed = append(perMed, fiber.Map{
			"medication_id": med.ID,
			"name":          med.Name,
			"status":        status,
		})
	}

	return c.JSON(fiber.Map{
		"date":        medication.DayOf(date).Format(dateLayout),
		"expected":    progress.TotalExpected,
		"taken":       progress.TotalTaken,
		"percentage":  progress.Percentage(),
		"medications": perMed,
	})
}

// ==================== Scan ====================

func (s *Server) handleScan(c *fiber.Ctx) error {
	if !s.config.Scan.Enabled {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "scan is disabled"})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "no image provided"})
	}
	f, err := file.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to open image"})
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to read image"})
	}

	guesses, err := s.core.Scan.Recognize(c.Context(), image)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"guesses": guesses})
}

// ==================== PIN and reset ====================

func (s *Server) handleSetPin(c *fiber.Ctx) error {
	var req struct {
		Pin     string `json:"pin"`
		Current string `json:"current"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	// Replacing an existing PIN requires the current one.
	set, err := s.core.Auth.IsSet()
	if err != nil {
		return s.fail(c, err)
	}
	if set {
		if err := s.core.Auth.Verify(req.Current); err != nil {
			return s.fail(c, err)
		}
	}

	if err := s.core.Auth.Set(req.Pin); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleVerifyPin(c *fiber.Ctx) error {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.core.Auth.Verify(req.Pin); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.core.Reset(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "reset"})
}

// pinGuard protects destructive routes with the device PIN when one is set.
func (s *Server) pinGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		set, err := s.core.Auth.IsSet()
		if err != nil {
			return s.fail(c, err)
		}
		if !set {
			return c.Next()
		}
		if err := s.core.Auth.Verify(c.Get("X-Device-Pin")); err != nil {
			return s.fail(c, err)
		}
		return c.Next()
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, raw, time.Local)
}
