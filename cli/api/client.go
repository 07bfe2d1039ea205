package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edgeroute/api/saga"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Geo struct {
	CountryCode string `json:"countryCode"`
	Country     string `json:"country"`
	City        string `json:"city"`
}

type Node struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TenantID           string `json:"tenantId"`
	Connected          bool   `json:"connected"`
	Active             bool   `json:"active"`
	IPAddress          string `json:"ipAddress"`
	Geo                *Geo   `json:"geo"`
	Status             string `json:"status"`
	LastSeenMinutesAgo *int   `json:"lastSeenMinutesAgo"`
}

type CreatedNode struct {
	Node            Node   `json:"node"`
	NodeKey         string `json:"nodeKey"`
	ConnectionToken string `json:"connectionToken"`
	ConnectURL      string `json:"connectUrl"`
}

type HealthStatus struct {
	Status   string `json:"status"`
	Services []struct {
		Name    string `json:"name"`
		Status  string `json:"status"`
		Details string `json:"details"`
	} `json:"services"`
}

type Summary struct {
	Total      int `json:"total"`
	Direct     int `json:"direct"`
	Fallback   int `json:"fallback"`
	LastResort int `json:"lastResort"`
	Uncovered  int `json:"uncovered"`
}

type Decision struct {
	LocationCode  string   `json:"locationCode"`
	NodeID        string   `json:"nodeId"`
	NodeName      string   `json:"nodeName"`
	NodeIP        string   `json:"nodeIp"`
	IsDirect      bool     `json:"isDirect"`
	IsLastResort  bool     `json:"isLastResort"`
	DistanceKm    *float64 `json:"distanceKm"`
	DistanceScore float64  `json:"distanceScore"`
}

type RoutingMap struct {
	EligibleNodes int `json:"eligibleNodes"`
	Domains       []struct {
		DomainID  string     `json:"domainId"`
		Domain    string     `json:"domain"`
		Decisions []Decision `json:"decisions"`
		Summary   Summary    `json:"summary"`
	} `json:"domains"`
	Totals Summary `json:"totals"`
}

type ReconcileReport struct {
	Checked     int      `json:"checkedCount"`
	Active      int      `json:"activeCount"`
	Inactive    int      `json:"inactiveCount"`
	Deactivated []string `json:"deactivated"`
	Activated   []string `json:"activated"`
}

func (c *Client) Health() (*HealthStatus, error) {
	var h HealthStatus
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) ListNodes(tenant string) ([]Node, error) {
	path := "/api/nodes"
	if tenant != "" {
		path += "?tenant=" + url.QueryEscape(tenant)
	}
	var nodes []Node
	if err := c.get(path, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) GetNode(id string) (*Node, error) {
	var n Node
	if err := c.get("/api/nodes/"+id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) CreateNode(name, tenant string) (*CreatedNode, error) {
	body := fmt.Sprintf(`{"name":%q,"tenantId":%q}`, name, tenant)
	var created CreatedNode
	if err := c.post("/api/nodes", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteNode(id string) error {
	return c.delete("/api/nodes/" + id)
}

func (c *Client) RoutingMap(tenant string) (*RoutingMap, error) {
	path := "/api/map"
	if tenant != "" {
		path += "?tenant=" + url.QueryEscape(tenant)
	}
	var m RoutingMap
	if err := c.get(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Reconcile() (*ReconcileReport, error) {
	var rep ReconcileReport
	if err := c.post("/api/health/reconcile", "{}", &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *Client) Publish() error {
	return c.post("/api/publish", "{}", nil)
}

func (c *Client) GetSagaEvents(sagaID string) ([]saga.Event, error) {
	var events []saga.Event
	if err := c.get("/api/events/"+sagaID, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) ListEvents(node string, limit int) ([]saga.Event, error) {
	path := fmt.Sprintf("/api/events?limit=%d", limit)
	if node != "" {
		path += "&node=" + url.QueryEscape(node)
	}
	var events []saga.Event
	if err := c.get(path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) ServerVersion() (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.get("/api/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into v when v is non-nil.
func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) get(path string, v any) error {
	req, err := c.newRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) post(path, body string, v any) error {
	req, err := c.newRequest(http.MethodPost, path, strings.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) delete(path string) error {
	req, err := c.newRequest(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
