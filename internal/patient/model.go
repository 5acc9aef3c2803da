// Package patient assembles per-patient clinical data from the Endotools
// API. Records are fetched fresh on every request and never persisted.
package patient

import "time"

// Summary is the normalized external patient identity.
type Summary struct {
	MRN        string
	FullName   string
	BirthDate  *time.Time
	Sex        *string
	ExternalID int
}

// Appointment is a normalized upcoming appointment. Clock is the
// appointment time of day in "HH:MM" form.
type Appointment struct {
	ID        int
	Date      *time.Time
	Clock     *string
	Procedure *string
}

// Examination is a normalized completed examination.
type Examination struct {
	ID              int
	Date            *time.Time
	Service         *string
	Procedure       *string
	Physician       *string
	ReportAvailable bool
}

// Report is the minimal projection of a report document's metadata. The
// document body is streamed separately.
type Report struct {
	ID    string
	Date  *time.Time
	Title string
	URL   string
}

// FullRecord is the combined per-patient dataset. Any sub-collection may
// legitimately be empty when the corresponding upstream call was
// unavailable; callers cannot tell that apart from genuinely empty data.
type FullRecord struct {
	Patient      *Summary
	Appointments []Appointment
	Examinations []Examination
	Reports      []Report
}

// Province is a reference-data entry for the registration form.
type Province struct {
	ID   int
	Name string
}

// Municipality is a reference-data entry for the registration form.
type Municipality struct {
	ID   int
	Name string
}

// Insurer is a reference-data entry for the registration form.
type Insurer struct {
	ID   int
	Name string
}
