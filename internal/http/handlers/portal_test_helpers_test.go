package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/internal/notify"
	"github.com/zenohealth/salus/internal/patient"
	"github.com/zenohealth/salus/internal/registration"
	"github.com/zenohealth/salus/web"
)

// fakeClinicalAPI satisfies both the aggregation service and the
// registration directory.
type fakeClinicalAPI struct {
	mu sync.Mutex

	demographics map[string]*endotools.DemographicsDTO // by mrn
	byDocument   map[string]*endotools.DemographicsDTO
	appointments map[string][]endotools.AppointmentDTO
	examinations map[int][]endotools.ExaminationDTO
	reports      map[int][]endotools.ReportDTO
	reportBody   []byte

	createResp *endotools.CreatePatientResponse
	created    []endotools.CreatePatientRequest
	createHook func() // runs inside CreatePatient, under the lock
}

func newFakeClinicalAPI() *fakeClinicalAPI {
	return &fakeClinicalAPI{
		demographics: map[string]*endotools.DemographicsDTO{},
		byDocument:   map[string]*endotools.DemographicsDTO{},
		appointments: map[string][]endotools.AppointmentDTO{},
		examinations: map[int][]endotools.ExaminationDTO{},
		reports:      map[int][]endotools.ReportDTO{},
		reportBody:   []byte("%PDF-1.4 test"),
	}
}

func notFound() error {
	return &endotools.APIError{Kind: endotools.KindNotFound, Status: http.StatusNotFound, Message: "not found"}
}

func (f *fakeClinicalAPI) GetDemographics(ctx context.Context, mrn string) (*endotools.DemographicsDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dto, ok := f.demographics[mrn]; ok {
		return dto, nil
	}
	return nil, notFound()
}

func (f *fakeClinicalAPI) GetPatientByDocument(ctx context.Context, document string) (*endotools.DemographicsDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dto, ok := f.byDocument[document]; ok {
		return dto, nil
	}
	return nil, notFound()
}

func (f *fakeClinicalAPI) GetAppointments(ctx context.Context, mrn string) ([]endotools.AppointmentDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appointments[mrn], nil
}

func (f *fakeClinicalAPI) GetExaminations(ctx context.Context, patientID int) ([]endotools.ExaminationDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.examinations[patientID], nil
}

func (f *fakeClinicalAPI) GetReports(ctx context.Context, examinationID int) ([]endotools.ReportDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[examinationID], nil
}

func (f *fakeClinicalAPI) GetLastReport(ctx context.Context, examinationID int) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports[examinationID]) == 0 {
		return nil, notFound()
	}
	return io.NopCloser(bytes.NewReader(f.reportBody)), nil
}

func (f *fakeClinicalAPI) GetProvinces(ctx context.Context) ([]endotools.ProvinceDTO, error) {
	return []endotools.ProvinceDTO{{ID: 28, Nombre: "Madrid"}}, nil
}

func (f *fakeClinicalAPI) GetMunicipalities(ctx context.Context) ([]endotools.MunicipalityDTO, error) {
	return []endotools.MunicipalityDTO{{ID: 1, Nombre: "Alcobendas"}}, nil
}

func (f *fakeClinicalAPI) GetInsurers(ctx context.Context) ([]endotools.InsurerDTO, error) {
	return []endotools.InsurerDTO{{ID: 3, Nombre: "Sanitas"}}, nil
}

func (f *fakeClinicalAPI) CreatePatient(ctx context.Context, req endotools.CreatePatientRequest) (*endotools.CreatePatientResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createHook != nil {
		f.createHook()
	}
	return f.createResp, nil
}

type portalFixture struct {
	repo     *accounts.InMemoryRepository
	api      *fakeClinicalAPI
	sessions *auth.SessionManager
	resets   *auth.ResetSessionStore
	auth     *AuthHandler
	portal   *PortalHandler
	register *RegistrationHandler
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()

	templates, err := web.ParseTemplates()
	require.NoError(t, err)
	renderer := NewRenderer(templates, nil)

	repo := accounts.NewInMemoryRepository()
	api := newFakeClinicalAPI()

	sessions, err := auth.NewSessionManager("test-secret", 2*time.Hour, false)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	resets := auth.NewResetSessionStore(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		10*time.Minute,
		false,
	)

	patients := patient.NewService(api, nil)
	login := auth.NewLoginService(repo, nil)
	mailer := notify.NewMailer(notify.NewStubEmailSender(nil), "https://portal.example.com", nil)

	return &portalFixture{
		repo:     repo,
		api:      api,
		sessions: sessions,
		resets:   resets,
		auth:     NewAuthHandler(login, sessions, resets, repo, mailer, renderer, nil),
		portal:   NewPortalHandler(patients, repo, renderer, nil),
		register: NewRegistrationHandler(registration.NewService(repo, api, mailer, nil), patients, renderer, nil),
	}
}

// seedPortalUser creates an account plus its upstream clinical record.
func (fx *portalFixture) seedPortalUser(t *testing.T, password string, expired bool) *accounts.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user, _, err := fx.repo.CreateUserWithPatient(context.Background(),
		accounts.NewUser{
			Username:          "12345678Z",
			Name:              "Ana Pérez García",
			Email:             "ana@example.com",
			Phone:             "600111222",
			HashedPassword:    hash,
			IsPasswordExpired: expired,
		},
		accounts.NewPatient{MRN: "MRN-001", MRNSystem: "endotools", Name: "Ana Pérez García"},
	)
	require.NoError(t, err)

	fx.api.demographics["MRN-001"] = &endotools.DemographicsDTO{
		ID:              910,
		IDUnico:         "MRN-001",
		Nombre:          "Ana",
		Apellido1:       "Pérez",
		Apellido2:       "García",
		FechaNacimiento: "1980-05-17",
		Sexo:            "2",
	}
	return user
}
