package endotools

import "encoding/json"

// Raw vendor payloads. Fields the portal does not consume are dropped by
// the decoder; nested objects stay as json.RawMessage so that malformed
// shapes surface during mapping instead of failing the whole decode.

// DemographicsDTO is the vendor's patient demographics record.
type DemographicsDTO struct {
	ID              int    `json:"id"`
	IDUnico         string `json:"idunico"`
	Nombre          string `json:"nombre"`
	Apellido1       string `json:"apellido1"`
	Apellido2       string `json:"apellido2"`
	FechaNacimiento string `json:"fechaNacimiento"`
	Sexo            string `json:"sexo"`
}

// AppointmentDTO is the vendor's appointment record.
type AppointmentDTO struct {
	ID              int             `json:"id"`
	Fecha           string          `json:"fecha"`
	Hora            string          `json:"hora"`
	TipoExploracion json.RawMessage `json:"tipoExploracion"`
}

// ExaminationDTO is the vendor's examination record.
type ExaminationDTO struct {
	ID              int             `json:"id"`
	Fecha           string          `json:"fecha"`
	Servicio        json.RawMessage `json:"servicio"`
	TipoExploracion json.RawMessage `json:"tipoExploracion"`
	Medico          json.RawMessage `json:"medico"`
}

// ReportDTO is the vendor's report record (metadata only; the document
// body is fetched separately as a stream).
type ReportDTO struct {
	InformeID string `json:"informe_id"`
	Titulo    string `json:"titulo"`
	Fecha     string `json:"fecha"`
}

// ProvinceDTO is a reference-data entry.
type ProvinceDTO struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
}

// MunicipalityDTO is a reference-data entry.
type MunicipalityDTO struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
}

// InsurerDTO is a reference-data entry.
type InsurerDTO struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
}

// CreatePatientRequest is the vendor's create-patient payload.
type CreatePatientRequest struct {
	Nombre          string `json:"nombre"`
	Apellido1       string `json:"apellido1"`
	Apellido2       string `json:"apellido2,omitempty"`
	Sexo            string `json:"sexo"` // "1" male, "2" female
	FechaNacimiento string `json:"fechaNacimiento"` // DD/MM/YYYY
	NIF             string `json:"nif"`
	Telefono        string `json:"telefono,omitempty"`
	Email           string `json:"email,omitempty"`
	Provincia       string `json:"provincia,omitempty"`
	Poblacion       string `json:"poblacion,omitempty"`
	AseguradoraID   int    `json:"aseguradora_id,omitempty"`
}

// CreatePatientResponse is the vendor's create-patient acknowledgment.
type CreatePatientResponse struct {
	ID string `json:"id"`
}
