package registration

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/internal/notify"
	"github.com/zenohealth/salus/pkg/logging"
)

type fakeDirectory struct {
	mu sync.Mutex

	// demographics returned by GetPatientByDocument after a create,
	// nil before it (simulating the not-yet-existing patient).
	demographics *endotools.DemographicsDTO
	lookupErr    error

	createResp *endotools.CreatePatientResponse
	createErr  error

	lookups int
	creates int
}

func (f *fakeDirectory) GetPatientByDocument(ctx context.Context, document string) (*endotools.DemographicsDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.creates == 0 || f.demographics == nil {
		return nil, &endotools.APIError{Kind: endotools.KindNotFound, Status: http.StatusNotFound, Message: "not found"}
	}
	return f.demographics, nil
}

func (f *fakeDirectory) CreatePatient(ctx context.Context, req endotools.CreatePatientRequest) (*endotools.CreatePatientResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

type memorySender struct {
	mu   sync.Mutex
	sent []notify.EmailMessage
}

func (m *memorySender) Send(ctx context.Context, msg notify.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memorySender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func validForm() Form {
	return Form{
		GivenNames:       "Ana",
		FamilyName1:      "Pérez",
		FamilyName2:      "García",
		Gender:           GenderFemale,
		IDDocumentNumber: "12345678Z",
		PhoneNumber:      "600111222",
		Email:            "ana@example.com",
		BirthDate:        time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC),
		InsurerID:        3,
		Province:         "Madrid",
		Municipality:     "Madrid",
	}
}

func TestRegisterHappyPath(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{
			ID:              910,
			IDUnico:         "MRN-910",
			Nombre:          "Ana",
			Apellido1:       "Pérez",
			Apellido2:       "García",
			FechaNacimiento: "1980-05-17",
			Sexo:            "2",
		},
		createResp: &endotools.CreatePatientResponse{ID: "910"},
	}
	sender := &memorySender{}
	mailer := notify.NewMailer(sender, "https://portal.example.com", nil)
	svc := NewService(repo, dir, mailer, nil)

	user, err := svc.Register(context.Background(), validForm())
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "12345678Z", user.Username)
	assert.Equal(t, "Ana Pérez García", user.Name)
	assert.True(t, user.IsPasswordExpired)
	assert.False(t, user.OTPPasswordUsed)

	// Temporary password is the birth date as DDMMYYYY.
	assert.True(t, auth.VerifyPassword(user.HashedPassword, "17051980"))

	p, err := repo.GetPatientByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "MRN-910", p.MRN)
	assert.Equal(t, "endotools", p.MRNSystem)
	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, 1980, p.DateOfBirth.Year())

	assert.Equal(t, 1, dir.creates)

	require.Eventually(t, func() bool { return sender.count() == 1 },
		time.Second, 10*time.Millisecond, "welcome email not sent")
}

func TestRegisterExistingLocalUser(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	hash, err := auth.HashPassword("whatever")
	require.NoError(t, err)
	_, _, err = repo.CreateUserWithPatient(context.Background(),
		accounts.NewUser{Username: "12345678Z", Name: "Ana", Email: "ana@example.com", HashedPassword: hash},
		accounts.NewPatient{MRN: "MRN-1", MRNSystem: "endotools", Name: "Ana"},
	)
	require.NoError(t, err)

	dir := &fakeDirectory{}
	svc := NewService(repo, dir, nil, nil)

	_, err = svc.Register(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Zero(t, dir.lookups, "no vendor call for a known local user")
	assert.Zero(t, dir.creates)
}

func TestRegisterExistingClinicalPatient(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 910, IDUnico: "MRN-910"},
	}
	// Patient already visible before any create.
	dir.creates = 1
	svc := NewService(repo, dir, nil, nil)

	_, err := svc.Register(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, dir.creates, "no new patient must be created")
}

func TestRegisterLookupFailureBlocksCreate(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		lookupErr: &endotools.APIError{Kind: endotools.KindServer, Status: http.StatusBadGateway, Message: "upstream down"},
	}
	svc := NewService(repo, dir, nil, nil)

	_, err := svc.Register(context.Background(), validForm())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyExists)
	assert.Zero(t, dir.creates, "a failed existence check must not create a patient")
}

func TestRegisterIDMismatchLeavesNoLocalAccount(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 911, IDUnico: "MRN-911", Nombre: "Ana"},
		createResp:   &endotools.CreatePatientResponse{ID: "910"},
	}
	svc := NewService(repo, dir, nil, nil)

	_, err := svc.Register(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrDataIntegrity)

	_, err = repo.GetUserByUsername(context.Background(), "12345678Z")
	assert.ErrorIs(t, err, accounts.ErrUserNotFound, "no local rows after an integrity failure")
}

func TestRegisterAcceptsPaddedExternalID(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 910, IDUnico: "MRN-910", Nombre: "Ana", Apellido1: "Pérez"},
		createResp:   &endotools.CreatePatientResponse{ID: " 0910"},
	}
	svc := NewService(repo, dir, nil, nil)

	// The vendor sometimes pads or spaces the acknowledged id; the
	// cross-check compares numerically.
	user, err := svc.Register(context.Background(), validForm())
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestRegisterRejectsUnparsableExternalID(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 910, IDUnico: "MRN-910", Nombre: "Ana"},
		createResp:   &endotools.CreatePatientResponse{ID: "not-a-number"},
	}
	svc := NewService(repo, dir, nil, nil)

	_, err := svc.Register(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrDataIntegrity)

	_, err = repo.GetUserByUsername(context.Background(), "12345678Z")
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)
}

type failingRepo struct {
	accounts.Repository
}

func (f *failingRepo) CreateUserWithPatient(ctx context.Context, user accounts.NewUser, p accounts.NewPatient) (*accounts.User, *accounts.Patient, error) {
	return nil, nil, errors.New("connection reset")
}

func TestRegisterLocalFailureLogsClinicalID(t *testing.T) {
	var logs bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	repo := &failingRepo{Repository: accounts.NewInMemoryRepository()}
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 910, IDUnico: "MRN-910", Nombre: "Ana"},
		createResp:   &endotools.CreatePatientResponse{ID: "910"},
	}
	svc := NewService(repo, dir, nil, logger)

	_, err := svc.Register(context.Background(), validForm())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyExists)

	// The clinical record exists but the local account does not; the
	// log must carry the external id for reconciliation.
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "clinical_id=910")
}

func TestRegisterFallsBackToDocumentPassword(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	dir := &fakeDirectory{
		demographics: &endotools.DemographicsDTO{ID: 910, IDUnico: "MRN-910", Nombre: "Ana", Apellido1: "Pérez"},
		createResp:   &endotools.CreatePatientResponse{ID: "910"},
	}
	svc := NewService(repo, dir, nil, nil)

	user, err := svc.Register(context.Background(), validForm())
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(user.HashedPassword, "12345678Z"))

	p, err := repo.GetPatientByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, p.DateOfBirth)
}

func TestFormValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Form)
		ok     bool
	}{
		{"valid", func(f *Form) {}, true},
		{"missing given names", func(f *Form) { f.GivenNames = " " }, false},
		{"missing family name", func(f *Form) { f.FamilyName1 = "" }, false},
		{"optional second family name", func(f *Form) { f.FamilyName2 = "" }, true},
		{"bad gender", func(f *Form) { f.Gender = "other" }, false},
		{"missing document", func(f *Form) { f.IDDocumentNumber = "" }, false},
		{"bad email", func(f *Form) { f.Email = "not-an-email" }, false},
		{"zero birth date", func(f *Form) { f.BirthDate = time.Time{} }, false},
		{"missing insurer", func(f *Form) { f.InsurerID = 0 }, false},
		{"missing province", func(f *Form) { f.Province = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(&form)
			err := form.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSexCode(t *testing.T) {
	f := validForm()
	assert.Equal(t, "2", f.sexCode())
	f.Gender = GenderMale
	assert.Equal(t, "1", f.sexCode())
}
