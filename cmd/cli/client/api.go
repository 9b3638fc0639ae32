package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"github.com/sqlreports/internal/models"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *APIClient) doRequest(method, path string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	token := viper.GetString("token")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(respBody))
	}

	return respBody, nil
}

func (c *APIClient) Login(username, password string) (string, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := c.doRequest("POST", "/api/v1/auth/login", body)
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", err
	}

	return result.Token, nil
}

func (c *APIClient) ListCategories() ([]models.Category, error) {
	resp, err := c.doRequest("GET", "/api/v1/categories", nil)
	if err != nil {
		return nil, err
	}

	var categories []models.Category
	if err := json.Unmarshal(resp, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *APIClient) CreateCategory(name string) error {
	_, err := c.doRequest("POST", "/api/v1/categories", map[string]string{"name": name})
	return err
}

func (c *APIClient) DeleteCategory(id uint) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/api/v1/categories/%d", id), nil)
	return err
}

func (c *APIClient) ListReports(categoryID uint) ([]models.Report, error) {
	path := "/api/v1/reports"
	if categoryID != 0 {
		path = fmt.Sprintf("%s?category=%d", path, categoryID)
	}

	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var reports []models.Report
	if err := json.Unmarshal(resp, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *APIClient) GetReport(id uint) (*models.Report, error) {
	resp, err := c.doRequest("GET", fmt.Sprintf("/api/v1/reports/%d", id), nil)
	if err != nil {
		return nil, err
	}

	var report models.Report
	if err := json.Unmarshal(resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *APIClient) CreateReport(report map[string]interface{}) error {
	_, err := c.doRequest("POST", "/api/v1/reports", report)
	return err
}

func (c *APIClient) DeleteReport(id uint) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/api/v1/reports/%d", id), nil)
	return err
}

type RunResult struct {
	CSVPath           string `json:"csv_path"`
	LastRun           int64  `json:"last_run"`
	LastExecutionTime int64  `json:"last_execution_time"`
}

func (c *APIClient) RunReport(id uint, params map[string]string) (*RunResult, error) {
	body := map[string]interface{}{"params": params}
	resp, err := c.doRequest("POST", fmt.Sprintf("/api/v1/reports/%d/run", id), body)
	if err != nil {
		return nil, err
	}

	var result RunResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) ListArchives(id uint) ([]int64, error) {
	resp, err := c.doRequest("GET", fmt.Sprintf("/api/v1/reports/%d/archives", id), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Archives []int64 `json:"archives"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	return result.Archives, nil
}
