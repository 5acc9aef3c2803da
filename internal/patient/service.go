package patient

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/pkg/logging"
)

// ClinicalAPI is the slice of the Endotools client the service consumes.
type ClinicalAPI interface {
	GetDemographics(ctx context.Context, mrn string) (*endotools.DemographicsDTO, error)
	GetAppointments(ctx context.Context, mrn string) ([]endotools.AppointmentDTO, error)
	GetExaminations(ctx context.Context, patientID int) ([]endotools.ExaminationDTO, error)
	GetReports(ctx context.Context, examinationID int) ([]endotools.ReportDTO, error)
	GetLastReport(ctx context.Context, examinationID int) (io.ReadCloser, error)
	GetProvinces(ctx context.Context) ([]endotools.ProvinceDTO, error)
	GetMunicipalities(ctx context.Context) ([]endotools.MunicipalityDTO, error)
	GetInsurers(ctx context.Context) ([]endotools.InsurerDTO, error)
}

// Service aggregates upstream clinical data into per-patient views. The
// upstream offers no transactional guarantee across calls, so each
// sub-collection degrades to empty when its call fails; only a not-found
// answer on demographics makes the whole aggregate absent.
type Service struct {
	client ClinicalAPI
	logger *logging.Logger
	tracer trace.Tracer
}

// NewService creates the aggregation service.
func NewService(client ClinicalAPI, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		client: client,
		logger: logger,
		tracer: otel.Tracer("salus/patient"),
	}
}

// GetFullRecord assembles demographics, appointments, examinations and
// report metadata for one patient. A nil record means the patient does
// not exist upstream.
func (s *Service) GetFullRecord(ctx context.Context, mrn string) *FullRecord {
	ctx, span := s.tracer.Start(ctx, "patient.GetFullRecord",
		trace.WithAttributes(attribute.String("patient.mrn", mrn)))
	defer span.End()

	summary, found := s.fetchSummary(ctx, mrn)
	if !found {
		return nil
	}

	record := &FullRecord{
		Patient:      summary,
		Appointments: []Appointment{},
		Examinations: []Examination{},
		Reports:      []Report{},
	}
	if summary == nil {
		// Demographics unavailable for a reason other than not-found:
		// degrade to an empty aggregate rather than abort.
		return record
	}

	record.Appointments = s.fetchAppointments(ctx, mrn)
	record.Examinations = s.fetchExaminations(ctx, summary.ExternalID)

	for _, exam := range record.Examinations {
		dtos, err := s.client.GetReports(ctx, exam.ID)
		if err != nil {
			// One examination's reports failing must not block the rest.
			s.logger.Warn("failed to get reports", "examination_id", exam.ID, "error", err)
			continue
		}
		for _, dto := range dtos {
			record.Reports = append(record.Reports, ToReport(dto, exam.ID, s.logger))
		}
	}

	span.SetAttributes(
		attribute.Int("patient.appointments", len(record.Appointments)),
		attribute.Int("patient.examinations", len(record.Examinations)),
		attribute.Int("patient.reports", len(record.Reports)),
	)
	return record
}

// GetSummary fetches demographics only. Nil means not found or
// unavailable.
func (s *Service) GetSummary(ctx context.Context, mrn string) *Summary {
	summary, _ := s.fetchSummary(ctx, mrn)
	return summary
}

// GetAppointments fetches the appointment list, degrading to empty on
// upstream failure.
func (s *Service) GetAppointments(ctx context.Context, mrn string) []Appointment {
	return s.fetchAppointments(ctx, mrn)
}

// GetExaminations fetches the examination list and probes report
// availability per examination without transferring report content. Nil
// means the patient does not exist upstream.
func (s *Service) GetExaminations(ctx context.Context, mrn string) []Examination {
	ctx, span := s.tracer.Start(ctx, "patient.GetExaminations",
		trace.WithAttributes(attribute.String("patient.mrn", mrn)))
	defer span.End()

	summary, found := s.fetchSummary(ctx, mrn)
	if !found || summary == nil {
		return nil
	}

	examinations := s.fetchExaminations(ctx, summary.ExternalID)
	for i := range examinations {
		dtos, err := s.client.GetReports(ctx, examinations[i].ID)
		if err != nil {
			s.logger.Warn("failed to probe reports", "examination_id", examinations[i].ID, "error", err)
			continue
		}
		examinations[i].ReportAvailable = len(dtos) > 0
	}
	return examinations
}

// LastReport streams the most recent report document for an examination.
// The stream passes through untransformed; the caller must close it.
func (s *Service) LastReport(ctx context.Context, examinationID int) (io.ReadCloser, error) {
	return s.client.GetLastReport(ctx, examinationID)
}

// Provinces lists reference provinces for the registration form.
func (s *Service) Provinces(ctx context.Context) ([]Province, error) {
	dtos, err := s.client.GetProvinces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Province, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, Province{ID: dto.ID, Name: dto.Nombre})
	}
	return out, nil
}

// Municipalities lists reference municipalities for the registration form.
func (s *Service) Municipalities(ctx context.Context) ([]Municipality, error) {
	dtos, err := s.client.GetMunicipalities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Municipality, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, Municipality{ID: dto.ID, Name: dto.Nombre})
	}
	return out, nil
}

// Insurers lists reference insurers for the registration form.
func (s *Service) Insurers(ctx context.Context) ([]Insurer, error) {
	dtos, err := s.client.GetInsurers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Insurer, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, Insurer{ID: dto.ID, Name: dto.Nombre})
	}
	return out, nil
}

// fetchSummary resolves demographics. found=false only for an upstream
// not-found; any other failure degrades to a nil summary with found=true.
func (s *Service) fetchSummary(ctx context.Context, mrn string) (*Summary, bool) {
	dto, err := s.client.GetDemographics(ctx, mrn)
	if err != nil {
		if endotools.IsNotFound(err) {
			s.logger.Warn("patient not found", "mrn", mrn)
			return nil, false
		}
		s.logger.Error("failed to get demographics", "mrn", mrn, "error", err)
		return nil, true
	}
	summary := ToSummary(dto, s.logger)
	return &summary, true
}

func (s *Service) fetchAppointments(ctx context.Context, mrn string) []Appointment {
	dtos, err := s.client.GetAppointments(ctx, mrn)
	if err != nil {
		s.logger.Error("failed to get appointments", "mrn", mrn, "error", err)
		return []Appointment{}
	}
	out := make([]Appointment, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, ToAppointment(dto, s.logger))
	}
	return out
}

func (s *Service) fetchExaminations(ctx context.Context, patientID int) []Examination {
	dtos, err := s.client.GetExaminations(ctx, patientID)
	if err != nil {
		s.logger.Error("failed to get examinations", "patient_id", patientID, "error", err)
		return []Examination{}
	}
	out := make([]Examination, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, ToExamination(dto, s.logger))
	}
	return out
}
