// Package endotools implements the HTTP client for the Endotools clinical
// API, the portal's upstream EHR vendor.
package endotools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zenohealth/salus/internal/observability/metrics"
	"github.com/zenohealth/salus/pkg/logging"
)

// Client issues authenticated calls against the Endotools REST API. Every
// call is a single attempt: no retries, no circuit breaking, no caching.
type Client struct {
	baseURL string
	authKey string
	// httpClient carries a total deadline and serves the JSON calls.
	// streamClient is bounded per phase (dial, TLS, headers) but not in
	// total, so a steadily arriving report stream never expires mid-body.
	httpClient   *http.Client
	streamClient *http.Client
	logger       *logging.Logger
	metrics      *metrics.UpstreamMetrics
}

// Config holds configuration for the Endotools client
type Config struct {
	BaseURL string // e.g. "https://ehr.example.com"
	AuthKey string // authkit cookie credential
	Timeout time.Duration
}

// New creates a new Endotools client
func New(cfg Config, logger *logging.Logger, m *metrics.UpstreamMetrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("endotools: BaseURL is required")
	}
	if cfg.AuthKey == "" {
		return nil, fmt.Errorf("endotools: AuthKey is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		authKey: cfg.AuthKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		streamClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger:  logger,
		metrics: m,
	}, nil
}

// GetDemographics fetches patient demographics by MRN. The endpoint may
// answer with a bare object or a one-element list; both normalize to the
// same DTO, and an empty list signals not found.
func (c *Client) GetDemographics(ctx context.Context, mrn string) (*DemographicsDTO, error) {
	params := url.Values{}
	params.Set("idunico", mrn)
	params.Set("deshabilitado", "0")

	raw, err := c.getJSON(ctx, "get_demographics", "/rest/pacientes.json", params)
	if err != nil {
		return nil, err
	}
	return decodeDemographics(raw, mrn)
}

// GetPatientByDocument fetches patient demographics by identity document.
func (c *Client) GetPatientByDocument(ctx context.Context, document string) (*DemographicsDTO, error) {
	params := url.Values{}
	params.Set("nif", document)
	params.Set("deshabilitado", "0")

	raw, err := c.getJSON(ctx, "get_patient_by_document", "/rest/pacientes.json", params)
	if err != nil {
		return nil, err
	}
	return decodeDemographics(raw, document)
}

// GetAppointments lists appointments for the given MRN.
func (c *Client) GetAppointments(ctx context.Context, mrn string) ([]AppointmentDTO, error) {
	params := url.Values{}
	params.Set("id_unico_paciente", mrn)

	raw, err := c.getJSON(ctx, "get_appointments", "/rest/citas.json", params)
	if err != nil {
		return nil, err
	}
	var out []AppointmentDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("appointments", err)
	}
	return out, nil
}

// GetExaminations lists completed examinations for the given external
// patient id.
func (c *Client) GetExaminations(ctx context.Context, patientID int) ([]ExaminationDTO, error) {
	params := url.Values{}
	params.Set("estado", "1")
	params.Set("paciente_id", strconv.Itoa(patientID))

	raw, err := c.getJSON(ctx, "get_examinations", "/rest/exploraciones.json", params)
	if err != nil {
		return nil, err
	}
	var out []ExaminationDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("examinations", err)
	}
	return out, nil
}

// GetReports lists report metadata for the given examination id.
func (c *Client) GetReports(ctx context.Context, examinationID int) ([]ReportDTO, error) {
	params := url.Values{}
	params.Set("exploracion_id", strconv.Itoa(examinationID))

	raw, err := c.getJSON(ctx, "get_reports", "/rest/informes.json", params)
	if err != nil {
		return nil, err
	}
	var out []ReportDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("reports", err)
	}
	return out, nil
}

// GetLastReport streams the most recent report document for an
// examination. The caller owns the returned ReadCloser and must close it
// whether or not the stream is fully consumed; closing releases the
// upstream connection. The configured timeout bounds dialing and the
// header phase only; the body keeps streaming until exhausted.
func (c *Client) GetLastReport(ctx context.Context, examinationID int) (io.ReadCloser, error) {
	path := fmt.Sprintf("/rest/exploraciones/%d/informes/_LAST.pdf", examinationID)
	resp, err := c.send(ctx, c.streamClient, "get_last_report", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetProvinces lists reference provinces.
func (c *Client) GetProvinces(ctx context.Context) ([]ProvinceDTO, error) {
	raw, err := c.getJSON(ctx, "get_provinces", "/rest/poblaciones.json", nil)
	if err != nil {
		return nil, err
	}
	var out []ProvinceDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("provinces", err)
	}
	return out, nil
}

// GetMunicipalities lists reference municipalities.
func (c *Client) GetMunicipalities(ctx context.Context) ([]MunicipalityDTO, error) {
	raw, err := c.getJSON(ctx, "get_municipalities", "/rest/provincias.json", nil)
	if err != nil {
		return nil, err
	}
	var out []MunicipalityDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("municipalities", err)
	}
	return out, nil
}

// GetInsurers lists reference insurers.
func (c *Client) GetInsurers(ctx context.Context) ([]InsurerDTO, error) {
	raw, err := c.getJSON(ctx, "get_insurers", "/rest/aseguradoras.json", nil)
	if err != nil {
		return nil, err
	}
	var out []InsurerDTO
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, protocolError("insurers", err)
	}
	return out, nil
}

// CreatePatient registers a new patient record upstream.
func (c *Client) CreatePatient(ctx context.Context, req CreatePatientRequest) (*CreatePatientResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, protocolError("create patient request", err)
	}

	resp, err := c.do(ctx, "create_patient", http.MethodPost, "/rest/pacientes.json", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var created CreatePatientResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, protocolError("create patient response", err)
	}
	return &created, nil
}

// getJSON performs a GET and returns the raw 2xx body.
func (c *Client) getJSON(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, operation, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}
	return raw, nil
}

// do issues a single instrumented request under the total deadline.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	return c.send(ctx, c.httpClient, operation, method, path, query, body)
}

// send issues a single instrumented request. Non-2xx responses and transport
// failures come back as *APIError; on success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, httpClient *http.Client, operation, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &APIError{Kind: KindAPI, Message: "failed to create request", cause: err}
	}
	req.Header.Set("Cookie", "i18next=es; authkit="+c.authKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	c.metrics.ObserveLatency(operation, time.Since(start).Seconds())
	if err != nil {
		apiErr := c.transportError(err)
		c.metrics.ObserveCall(operation, apiErr.Kind.String())
		c.logger.Error("endotools request failed", "operation", operation, "error", err)
		return nil, apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := statusError(resp.StatusCode)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.metrics.ObserveCall(operation, apiErr.Kind.String())
		if apiErr.Kind == KindNotFound {
			c.logger.Warn("endotools resource not found", "operation", operation, "url", endpoint)
		} else {
			c.logger.Error("endotools error response", "operation", operation, "status", resp.StatusCode, "url", endpoint)
		}
		return nil, apiErr
	}

	c.metrics.ObserveCall(operation, "ok")
	return resp, nil
}

func (c *Client) transportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Message: "request timed out", cause: err}
	}
	return &APIError{Kind: KindAPI, Message: "request failed", cause: err}
}

func statusError(status int) *APIError {
	switch {
	case status == http.StatusUnauthorized:
		return &APIError{Kind: KindAuth, Status: status, Message: "authentication failed"}
	case status == http.StatusForbidden:
		return &APIError{Kind: KindPermission, Status: status, Message: "permission denied"}
	case status == http.StatusNotFound:
		return &APIError{Kind: KindNotFound, Status: status, Message: "resource not found"}
	case status >= 500 && status < 600:
		return &APIError{Kind: KindServer, Status: status, Message: "server error"}
	default:
		return &APIError{Kind: KindAPI, Status: status, Message: "unexpected status"}
	}
}

func protocolError(what string, err error) *APIError {
	return &APIError{Kind: KindAPI, Message: "unexpected " + what + " payload", cause: err}
}

// decodeDemographics normalizes the list-vs-singleton ambiguity of the
// demographics endpoint: a bare object is used as-is, an array contributes
// its first element, an empty array means not found.
func decodeDemographics(raw []byte, key string) (*DemographicsDTO, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &APIError{Kind: KindAPI, Message: "empty demographics response"}
	}

	switch trimmed[0] {
	case '{':
		var dto DemographicsDTO
		if err := json.Unmarshal(trimmed, &dto); err != nil {
			return nil, protocolError("demographics payload", err)
		}
		return &dto, nil
	case '[':
		var list []DemographicsDTO
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, protocolError("demographics payload", err)
		}
		if len(list) == 0 {
			return nil, &APIError{Kind: KindNotFound, Message: "no demographics found for " + key}
		}
		return &list[0], nil
	default:
		return nil, &APIError{Kind: KindAPI, Message: "unexpected demographics response format"}
	}
}
