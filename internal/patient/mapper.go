package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/pkg/logging"
)

// Vendor payloads carry dates and times in more than one format, and
// several fields arrive as nested objects or not at all. Mapping never
// fails: anything malformed normalizes to absent with a diagnostic log.

var dateLayouts = []string{"2006-01-02", "02/01/2006"}
var clockLayouts = []string{"15:04:05", "15:04"}

// ToSummary normalizes a demographics DTO into a Summary.
func ToSummary(dto *endotools.DemographicsDTO, logger *logging.Logger) Summary {
	return Summary{
		MRN:        dto.IDUnico,
		FullName:   FullName(dto.Nombre, dto.Apellido1, dto.Apellido2),
		BirthDate:  parseDate(dto.FechaNacimiento, "fechaNacimiento", logger),
		Sex:        optional(dto.Sexo),
		ExternalID: dto.ID,
	}
}

// ToAppointment normalizes an appointment DTO.
func ToAppointment(dto endotools.AppointmentDTO, logger *logging.Logger) Appointment {
	return Appointment{
		ID:        dto.ID,
		Date:      parseDate(dto.Fecha, "fecha", logger),
		Clock:     parseClock(dto.Hora, logger),
		Procedure: nestedName(dto.TipoExploracion),
	}
}

// ToExamination normalizes an examination DTO.
func ToExamination(dto endotools.ExaminationDTO, logger *logging.Logger) Examination {
	return Examination{
		ID:        dto.ID,
		Date:      parseDate(dto.Fecha, "fecha", logger),
		Service:   nestedName(dto.Servicio),
		Procedure: nestedName(dto.TipoExploracion),
		Physician: nestedName(dto.Medico),
	}
}

// ToReport normalizes a report DTO. URL points at the portal's own
// download route, which streams the latest document of the examination
// the report belongs to.
func ToReport(dto endotools.ReportDTO, examinationID int, logger *logging.Logger) Report {
	return Report{
		ID:    dto.InformeID,
		Date:  parseDate(dto.Fecha, "fecha", logger),
		Title: dto.Titulo,
		URL:   fmt.Sprintf("/examinations/%d/report", examinationID),
	}
}

// FullName joins the given name and up to two family-name parts with
// single spaces, skipping empty parts.
func FullName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// parseDate accepts YYYY-MM-DD and DD/MM/YYYY; anything else is absent.
func parseDate(raw, field string, logger *logging.Logger) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	if logger != nil {
		logger.Warn("invalid date received", "field", field, "value", raw)
	}
	return nil
}

// parseClock accepts HH:MM:SS and HH:MM; the result is normalized to
// "HH:MM".
func parseClock(raw string, logger *logging.Logger) *string {
	if raw == "" {
		return nil
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			s := t.Format("15:04")
			return &s
		}
	}
	if logger != nil {
		logger.Warn("invalid time received", "value", raw)
	}
	return nil
}

// nestedName extracts {"nombre": "X"} from a raw nested field. A missing
// field, a non-object value, or a missing key all yield absent.
func nestedName(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var obj struct {
		Nombre string `json:"nombre"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Nombre == "" {
		return nil
	}
	return &obj.Nombre
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
