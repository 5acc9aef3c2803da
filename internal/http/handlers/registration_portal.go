package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/zenohealth/salus/internal/patient"
	"github.com/zenohealth/salus/internal/registration"
	"github.com/zenohealth/salus/pkg/logging"
)

// RegistrationHandler serves the self-registration pages.
type RegistrationHandler struct {
	service  *registration.Service
	patients *patient.Service
	renderer *Renderer
	logger   *logging.Logger
}

func NewRegistrationHandler(service *registration.Service, patients *patient.Service, renderer *Renderer, logger *logging.Logger) *RegistrationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RegistrationHandler{service: service, patients: patients, renderer: renderer, logger: logger}
}

type registerPageData struct {
	BaseData
	Form           registration.Form
	Provinces      []patient.Province
	Municipalities []patient.Municipality
	Insurers       []patient.Insurer
}

// ShowRegister renders the registration form with reference data from
// the clinical system.
// GET /register
func (h *RegistrationHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	data := registerPageData{BaseData: newBaseData(r, "Registro")}
	h.loadReferenceData(r, &data)
	h.renderer.Render(w, http.StatusOK, "register.html", data)
}

// Register submits the registration workflow.
// POST /register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	form := parseRegistrationForm(r)

	_, err := h.service.Register(r.Context(), form)
	if err == nil {
		h.renderer.Render(w, http.StatusOK, "register_success.html", newBaseData(r, "Cuenta creada"))
		return
	}

	data := registerPageData{BaseData: newBaseData(r, "Registro"), Form: form}
	data.FlashKind = "error"
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, registration.ErrAlreadyExists):
		data.Flash = "Ya existe una cuenta con ese documento de identidad."
		status = http.StatusConflict
	case errors.Is(err, registration.ErrDataIntegrity):
		h.logger.Error("registration integrity failure", "error", err)
		data.Flash = "No se pudo completar el registro. Contacte con la clínica."
		status = http.StatusBadGateway
	default:
		h.logger.Warn("registration rejected", "error", err)
		data.Flash = "No se pudo completar el registro. Revise los datos introducidos."
	}
	h.loadReferenceData(r, &data)
	h.renderer.Render(w, status, "register.html", data)
}

func (h *RegistrationHandler) loadReferenceData(r *http.Request, data *registerPageData) {
	var err error
	if data.Provinces, err = h.patients.Provinces(r.Context()); err != nil {
		h.logger.Warn("failed to load provinces", "error", err)
	}
	if data.Municipalities, err = h.patients.Municipalities(r.Context()); err != nil {
		h.logger.Warn("failed to load municipalities", "error", err)
	}
	if data.Insurers, err = h.patients.Insurers(r.Context()); err != nil {
		h.logger.Warn("failed to load insurers", "error", err)
	}
}

func parseRegistrationForm(r *http.Request) registration.Form {
	form := registration.Form{
		GivenNames:       r.FormValue("given_names"),
		FamilyName1:      r.FormValue("family_name_1"),
		FamilyName2:      r.FormValue("family_name_2"),
		Gender:           r.FormValue("gender"),
		IDDocumentNumber: r.FormValue("id_document_number"),
		PhoneNumber:      r.FormValue("phone_number"),
		Email:            r.FormValue("email"),
		Province:         r.FormValue("province"),
		Municipality:     r.FormValue("municipality"),
	}
	if birth, err := time.Parse("2006-01-02", r.FormValue("birth_date")); err == nil {
		form.BirthDate = birth
	}
	if insurerID, err := strconv.Atoi(r.FormValue("insurer_id")); err == nil {
		form.InsurerID = insurerID
	}
	return form
}
