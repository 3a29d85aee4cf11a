package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	"billova/internal/ocr"
	"billova/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	result *ocr.Result
	err    error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ string, _ []byte) (*ocr.Result, error) {
	return a.result, a.err
}

func (s *ServerTestSuite) postReceipt(analyzer services.ReceiptAnalyzer) *httptest.ResponseRecorder {
	s.server.ocr = services.NewOCRService(analyzer, s.repo, s.server.expenses, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "receipt.jpg")
	require.NoError(s.T(), err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(s.T(), err)
	require.NoError(s.T(), writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/ocr/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(s.cookie)
	rec := httptest.NewRecorder()
	s.server.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func (s *ServerTestSuite) TestOCRIngestCreatesExpense() {
	rec := s.postReceipt(&fakeAnalyzer{result: &ocr.Result{
		Date:    time.Date(2025, 3, 10, 14, 22, 0, 0, time.UTC),
		Total:   "25.99",
		Issuer:  "SuperMart",
		RawText: "SuperMart\nTotal 25.99",
	}})
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())

	var created expenseDTO
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(s.T(), "25.99", created.Price)
	assert.Equal(s.T(), "SuperMart", created.InvoiceIssuer)
	assert.Equal(s.T(), []string{"Generated"}, created.Categories)
}

func (s *ServerTestSuite) TestOCRIngestMissingTotal() {
	rec := s.postReceipt(&fakeAnalyzer{err: ocr.ErrMissingTotal})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), "total")
}

func (s *ServerTestSuite) TestOCRIngestVendorFailure() {
	rec := s.postReceipt(&fakeAnalyzer{err: context.DeadlineExceeded})
	assert.Equal(s.T(), http.StatusBadGateway, rec.Code)
}

func (s *ServerTestSuite) TestOCRIngestUnconfigured() {
	s.server.ocr = nil
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/ocr/", nil)
	req.AddCookie(s.cookie)
	rec := httptest.NewRecorder()
	s.server.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusServiceUnavailable, rec.Code)
}
