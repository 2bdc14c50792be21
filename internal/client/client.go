// Package client provides an HTTP client for the casa REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/checklist-casa/internal/compare"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

// Client is an HTTP client for the casa API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// ProjectDetail is the response from GET /api/projects/{id}.
type ProjectDetail struct {
	Project       *project.Project   `json:"project"`
	Members       []*project.Member  `json:"members"`
	Realtors      []*realtor.Realtor `json:"realtors"`
	VisitCount    int                `json:"visit_count"`
	CriteriaCount int                `json:"criteria_count"`
}

// Assessment is one criterion's value on a visit, as displayed.
type Assessment struct {
	CriteriaID int64         `json:"criteria_id"`
	Name       string        `json:"name"`
	Type       criteria.Type `json:"type"`
	Display    string        `json:"display"`
}

// VisitDetail is a visit with its assessments and photos.
type VisitDetail struct {
	Visit       *visit.Visit   `json:"visit"`
	Assessments []Assessment   `json:"assessments"`
	Photos      []*visit.Photo `json:"photos"`
}

// Cell is one comparison cell.
type Cell struct {
	CriteriaID int64             `json:"criteria_id"`
	Display    string            `json:"display"`
	Highlight  compare.Highlight `json:"highlight,omitempty"`
}

// Row is one visit across all criteria.
type Row struct {
	Visit *visit.Visit `json:"visit"`
	Cells []Cell       `json:"cells"`
}

// Comparison is the response from GET /api/projects/{id}/comparison.
type Comparison struct {
	Criteria []*criteria.Criteria   `json:"criteria"`
	Rows     []Row                  `json:"rows"`
	Stats    map[int64]compare.Stat `json:"stats"`
	SortBy   int64                  `json:"sort_by,omitempty"`
	Dir      compare.Direction      `json:"dir,omitempty"`
}

// ListProjects returns the projects the key's user belongs to.
func (c *Client) ListProjects(ctx context.Context) ([]*project.Project, error) {
	var list []*project.Project
	if err := c.get(ctx, "/api/projects", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateProject starts a new project owned by the key's user.
func (c *Client) CreateProject(ctx context.Context, name string) (*project.Project, error) {
	var p project.Project
	if err := c.post(ctx, "/api/projects", map[string]string{"name": name}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns a project with its members and totals.
func (c *Client) GetProject(ctx context.Context, id int64) (*ProjectDetail, error) {
	var d ProjectDetail
	if err := c.get(ctx, projectPath(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// FinishProject marks a project finished.
func (c *Client) FinishProject(ctx context.Context, id int64) (*project.Project, error) {
	var p project.Project
	if err := c.post(ctx, projectPath(id)+"/finish", struct{}{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCriteria returns a project's criteria in display order.
func (c *Client) ListCriteria(ctx context.Context, projectID int64) ([]*criteria.Criteria, error) {
	var list []*criteria.Criteria
	if err := c.get(ctx, projectPath(projectID)+"/criteria", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CriteriaInput is the body of a create-criteria request.
type CriteriaInput struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Weight *float64 `json:"weight,omitempty"`
}

// AddCriteria adds a criterion to a project.
func (c *Client) AddCriteria(ctx context.Context, projectID int64, in CriteriaInput) (*criteria.Criteria, error) {
	var cr criteria.Criteria
	if err := c.post(ctx, projectPath(projectID)+"/criteria", in, &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

// VisitListOptions filters ListVisits.
type VisitListOptions struct {
	RealtorID int64
	Query     string
	Limit     int
}

func (o VisitListOptions) values() url.Values {
	v := url.Values{}
	if o.RealtorID > 0 {
		v.Set("realtor", strconv.FormatInt(o.RealtorID, 10))
	}
	if o.Query != "" {
		v.Set("q", o.Query)
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

// ListVisits returns a project's visits, newest first.
func (c *Client) ListVisits(ctx context.Context, projectID int64, opts VisitListOptions) ([]*visit.Visit, error) {
	var list []*visit.Visit
	if err := c.get(ctx, withQuery(projectPath(projectID)+"/visits", opts.values()), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetVisit returns a visit with its assessments and photos.
func (c *Client) GetVisit(ctx context.Context, projectID, visitID int64) (*VisitDetail, error) {
	var d VisitDetail
	if err := c.get(ctx, fmt.Sprintf("%s/visits/%d", projectPath(projectID), visitID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// NewVisit is the body of a create-visit request. Assessments map criteria
// IDs to raw values in the same form the web wizard accepts.
type NewVisit struct {
	Name        string           `json:"name"`
	Address     string           `json:"address,omitempty"`
	VisitDate   string           `json:"visit_date,omitempty"`
	RealtorID   *int64           `json:"realtor_id,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Assessments map[int64]string `json:"assessments,omitempty"`
}

// AddVisit records a visit with its assessments.
func (c *Client) AddVisit(ctx context.Context, projectID int64, in NewVisit) (*VisitDetail, error) {
	var d VisitDetail
	if err := c.post(ctx, projectPath(projectID)+"/visits", in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CompareOptions control sorting and filtering of a comparison.
type CompareOptions struct {
	SortBy    int64
	Desc      bool
	RealtorID int64
	Query     string
}

func (o CompareOptions) values() url.Values {
	v := url.Values{}
	if o.SortBy > 0 {
		v.Set("sort", strconv.FormatInt(o.SortBy, 10))
		if o.Desc {
			v.Set("dir", string(compare.Desc))
		}
	}
	if o.RealtorID > 0 {
		v.Set("realtor", strconv.FormatInt(o.RealtorID, 10))
	}
	if o.Query != "" {
		v.Set("q", o.Query)
	}
	return v
}

// Comparison returns the side-by-side comparison of a project's visits.
func (c *Client) Comparison(ctx context.Context, projectID int64, opts CompareOptions) (*Comparison, error) {
	var cmp Comparison
	if err := c.get(ctx, withQuery(projectPath(projectID)+"/comparison", opts.values()), &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// Export writes the project's CSV export to w. The export lists every visit
// in default order.
func (c *Client) Export(ctx context.Context, projectID int64, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+projectPath(projectID)+"/export.csv", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, func(body []byte) error {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		return nil
	})
}

func projectPath(id int64) string {
	return fmt.Sprintf("/api/projects/%d", id)
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, decodeInto(result))
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, decodeInto(result))
}

func decodeInto(result any) func([]byte) error {
	return func(body []byte) error {
		if result == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
}

// do executes an HTTP request with the auth header and hands a successful
// body to handle.
func (c *Client) do(req *http.Request, handle func([]byte) error) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("warning: closing response body: %v\n", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: "server error: " + http.StatusText(resp.StatusCode)}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	return handle(respBody)
}
