// Package ocr talks to the external receipt-OCR vendor API.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrMissingTotal is returned when the vendor response has no parseable
// total. Price is mandatory on an expense, so this is a hard failure.
var ErrMissingTotal = errors.New("ocr: response has no parseable total")

// Result is the vendor's reading of a receipt, mapped to neutral fields.
// Date is zero when the vendor returned no usable date; Issuer and RawText
// are empty when missing.
type Result struct {
	Date    time.Time
	Total   string
	Issuer  string
	RawText string
}

// Client submits receipt images to the vendor's analyze endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// vendorResponse mirrors the vendor's JSON schema.
type vendorResponse struct {
	Date   string `json:"date"`
	Total  string `json:"total"`
	Vendor struct {
		Name string `json:"name"`
	} `json:"vendor"`
	OCRText string `json:"ocr_text"`
}

// Vendor date layouts observed in responses; tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Analyze uploads the image and maps the vendor response. The vendor call
// is synchronous; the context and client timeout bound its duration.
func (c *Client) Analyze(ctx context.Context, filename string, image []byte) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "apikey "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ocr vendor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log line; the caller only
		// sees a generic failure either way.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr vendor returned %s: %s", resp.Status, snippet)
	}

	var vr vendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}

	if vr.Total == "" {
		return nil, ErrMissingTotal
	}

	result := &Result{
		Total:   vr.Total,
		Issuer:  vr.Vendor.Name,
		RawText: vr.OCRText,
	}
	// Invalid or missing dates are not fatal; the caller falls back to now.
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, vr.Date); err == nil {
			result.Date = t
			break
		}
	}
	return result, nil
}
