package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/internal/patient"
	"github.com/zenohealth/salus/pkg/logging"
)

// PortalHandler serves the authenticated patient pages.
type PortalHandler struct {
	patients *patient.Service
	repo     accounts.Repository
	renderer *Renderer
	logger   *logging.Logger
}

func NewPortalHandler(patients *patient.Service, repo accounts.Repository, renderer *Renderer, logger *logging.Logger) *PortalHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PortalHandler{patients: patients, repo: repo, renderer: renderer, logger: logger}
}

// mrnForRequest resolves the session user's medical record number.
func (h *PortalHandler) mrnForRequest(r *http.Request) (string, *accounts.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return "", nil, false
	}
	p, err := h.repo.GetPatientByUserID(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("no patient record for user", "user_id", user.ID, "error", err)
		return "", user, false
	}
	return p.MRN, user, true
}

type homePageData struct {
	BaseData
	Record *patient.FullRecord
}

// Home shows the patient's aggregated clinical overview.
// GET /
func (h *PortalHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := homePageData{BaseData: newBaseData(r, "Inicio")}
	data.FlashKind, data.Flash = popFlash(w, r)

	mrn, _, ok := h.mrnForRequest(r)
	if ok {
		data.Record = h.patients.GetFullRecord(r.Context(), mrn)
	}
	if data.Record == nil {
		// Unknown upstream or no linked patient: show the degraded page.
		data.Record = &patient.FullRecord{
			Appointments: []patient.Appointment{},
			Examinations: []patient.Examination{},
			Reports:      []patient.Report{},
		}
	}
	h.renderer.Render(w, http.StatusOK, "home.html", data)
}

type appointmentsPageData struct {
	BaseData
	Appointments []patient.Appointment
}

// Appointments lists the patient's appointments.
// GET /appointments
func (h *PortalHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	data := appointmentsPageData{BaseData: newBaseData(r, "Citas")}
	if mrn, _, ok := h.mrnForRequest(r); ok {
		data.Appointments = h.patients.GetAppointments(r.Context(), mrn)
	}
	h.renderer.Render(w, http.StatusOK, "appointments.html", data)
}

type reportsPageData struct {
	BaseData
	Examinations []patient.Examination
}

// Reports lists the patient's examinations with report availability.
// GET /reports
func (h *PortalHandler) Reports(w http.ResponseWriter, r *http.Request) {
	data := reportsPageData{BaseData: newBaseData(r, "Informes")}
	if mrn, _, ok := h.mrnForRequest(r); ok {
		data.Examinations = h.patients.GetExaminations(r.Context(), mrn)
	}
	h.renderer.Render(w, http.StatusOK, "reports.html", data)
}

// DownloadReport streams the latest report document of an examination.
// The browser decides whether to display or save it.
// GET /examinations/{examinationID}/report
func (h *PortalHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	examinationID, err := strconv.Atoi(chi.URLParam(r, "examinationID"))
	if err != nil {
		http.Error(w, "invalid examination id", http.StatusBadRequest)
		return
	}

	stream, err := h.patients.LastReport(r.Context(), examinationID)
	if err != nil {
		if endotools.IsNotFound(err) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch report", "examination_id", examinationID, "error", err)
		http.Error(w, "report unavailable", http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename=informe.pdf`)
	if _, err := io.Copy(w, stream); err != nil {
		h.logger.Warn("report stream interrupted", "examination_id", examinationID, "error", err)
	}
}

// Health reports service liveness.
// GET /health
func (h *PortalHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
