package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/internal/notify"
	"github.com/zenohealth/salus/internal/patient"
	"github.com/zenohealth/salus/pkg/logging"
)

var (
	// ErrAlreadyExists means the document number is already registered,
	// either locally or in the clinical system.
	ErrAlreadyExists = errors.New("registration: patient already exists")

	// ErrDataIntegrity means the clinical system acknowledged the new
	// patient but the re-fetched record does not match; no local
	// account is created.
	ErrDataIntegrity = errors.New("registration: created patient could not be verified")
)

// Directory is the slice of the clinical API registration needs.
type Directory interface {
	GetPatientByDocument(ctx context.Context, document string) (*endotools.DemographicsDTO, error)
	CreatePatient(ctx context.Context, req endotools.CreatePatientRequest) (*endotools.CreatePatientResponse, error)
}

// Service registers new patients: it creates them in the clinical
// system first, then mirrors a local account whose temporary password
// follows the clinic's convention.
type Service struct {
	repo   accounts.Repository
	client Directory
	mailer *notify.Mailer
	logger *logging.Logger
}

func NewService(repo accounts.Repository, client Directory, mailer *notify.Mailer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, client: client, mailer: mailer, logger: logger}
}

// Register runs the full registration workflow and returns the created
// local account. Nothing is written locally until the clinical system
// has confirmed the new patient.
func (s *Service) Register(ctx context.Context, form Form) (*accounts.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	document := form.IDDocumentNumber

	// Local duplicate check first; cheaper than a vendor round trip.
	if _, err := s.repo.GetUserByUsername(ctx, document); err == nil {
		s.logger.Warn("registration attempt for existing user", "document", document)
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, accounts.ErrUserNotFound) {
		return nil, fmt.Errorf("registration: lookup user: %w", err)
	}

	// The clinical system must not know this document either.
	if _, err := s.client.GetPatientByDocument(ctx, document); err == nil {
		s.logger.Warn("registration attempt for existing clinical patient", "document", document)
		return nil, ErrAlreadyExists
	} else if !endotools.IsNotFound(err) {
		return nil, fmt.Errorf("registration: check existing patient: %w", err)
	}

	created, err := s.client.CreatePatient(ctx, endotools.CreatePatientRequest{
		Nombre:          form.GivenNames,
		Apellido1:       form.FamilyName1,
		Apellido2:       form.FamilyName2,
		Sexo:            form.sexCode(),
		FechaNacimiento: form.BirthDate.Format("02/01/2006"),
		NIF:             document,
		Telefono:        form.PhoneNumber,
		Email:           form.Email,
		Provincia:       form.Province,
		Poblacion:       form.Municipality,
		AseguradoraID:   form.InsurerID,
	})
	if err != nil {
		return nil, fmt.Errorf("registration: create clinical patient: %w", err)
	}

	// Re-fetch and cross-check before trusting the acknowledgment.
	demographics, err := s.client.GetPatientByDocument(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("registration: verify created patient: %w", err)
	}
	externalID, convErr := strconv.Atoi(strings.TrimSpace(created.ID))
	if convErr != nil || demographics.ID != externalID {
		s.logger.Warn("patient id mismatch after create",
			"expected", created.ID, "got", demographics.ID, "document", document)
		return nil, ErrDataIntegrity
	}

	fullName := patient.FullName(demographics.Nombre, demographics.Apellido1, demographics.Apellido2)
	otp, birthDate := temporaryPassword(demographics.FechaNacimiento, document)
	hash, err := auth.HashPassword(otp)
	if err != nil {
		return nil, fmt.Errorf("registration: hash temporary password: %w", err)
	}

	user, _, err := s.repo.CreateUserWithPatient(ctx,
		accounts.NewUser{
			Username:          document,
			Name:              fullName,
			Email:             form.Email,
			Phone:             form.PhoneNumber,
			HashedPassword:    hash,
			IsPasswordExpired: true,
		},
		accounts.NewPatient{
			MRN:         demographics.IDUnico,
			MRNSystem:   "endotools",
			Name:        fullName,
			DateOfBirth: birthDate,
		},
	)
	if err != nil {
		if errors.Is(err, accounts.ErrUserExists) || errors.Is(err, accounts.ErrPatientExists) {
			return nil, ErrAlreadyExists
		}
		// The clinical record already exists at this point; keep the
		// external id in the log so the mismatch can be reconciled.
		s.logger.Error("local account creation failed after clinical create",
			"document", document, "clinical_id", created.ID, "error", err)
		return nil, fmt.Errorf("registration: create local account: %w", err)
	}
	s.logger.Info("patient registered", "user_id", user.ID, "clinical_id", created.ID)

	if s.mailer != nil {
		s.mailer.SendAsync(notify.NotificationWelcome, form.Email, fullName, notify.MailData{
			Name:              form.GivenNames,
			Username:          document,
			TemporaryPassword: otp,
		})
	}
	return user, nil
}

var birthDateLayouts = []string{"2006-01-02", "02/01/2006"}

// temporaryPassword derives the first-login password. The clinic hands
// out the birth date as DDMMYYYY; when the clinical record carries no
// parseable birth date, the document number is used instead.
func temporaryPassword(rawBirthDate, document string) (string, *time.Time) {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, rawBirthDate); err == nil {
			return t.Format("02012006"), &t
		}
	}
	return document, nil
}
