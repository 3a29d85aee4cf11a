package services

import (
	"context"
	"errors"
	"time"

	"billova/internal/core"
	"billova/internal/ocr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	result *ocr.Result
	err    error
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ string, _ []byte) (*ocr.Result, error) {
	return a.result, a.err
}

func (s *ServiceTestSuite) TestIngestReceipt() {
	analyzer := &stubAnalyzer{result: &ocr.Result{
		Date:    time.Date(2025, 3, 10, 14, 22, 0, 0, time.UTC),
		Total:   "25,99",
		Issuer:  "SuperMart",
		RawText: "SuperMart\nTotal 25.99",
	}}
	svc := NewOCRService(analyzer, s.repo, s.expenses, s.publisher)

	e, err := svc.IngestReceipt(s.ctx, s.user.ID, "receipt.jpg", []byte("img"))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2599), e.Price.Cents)
	assert.Equal(s.T(), "SuperMart", e.InvoiceIssuer)
	require.Len(s.T(), e.Categories, 1)
	assert.Equal(s.T(), core.GeneratedCategoryName, e.Categories[0].Name)
	assert.Equal(s.T(), s.global.ID, e.Categories[0].OwnerID)

	require.Len(s.T(), s.publisher.messages, 1)
	assert.Equal(s.T(), e.ID, s.publisher.messages[0].ExpenseID)
}

func (s *ServiceTestSuite) TestIngestReceiptMissingDateFallsBack() {
	analyzer := &stubAnalyzer{result: &ocr.Result{Total: "5.00"}}
	svc := NewOCRService(analyzer, s.repo, s.expenses, s.publisher)

	before := time.Now().Add(-time.Minute)
	e, err := svc.IngestReceipt(s.ctx, s.user.ID, "receipt.jpg", []byte("img"))
	require.NoError(s.T(), err)
	assert.True(s.T(), e.InvoiceDateTime.After(before))
}

func (s *ServiceTestSuite) TestIngestReceiptBadTotal() {
	analyzer := &stubAnalyzer{result: &ocr.Result{Total: "lots"}}
	svc := NewOCRService(analyzer, s.repo, s.expenses, s.publisher)

	_, err := svc.IngestReceipt(s.ctx, s.user.ID, "receipt.jpg", []byte("img"))
	assert.Error(s.T(), err)
}

func (s *ServiceTestSuite) TestIngestReceiptAnalyzerError() {
	analyzer := &stubAnalyzer{err: errors.New("vendor down")}
	svc := NewOCRService(analyzer, s.repo, s.expenses, s.publisher)

	_, err := svc.IngestReceipt(s.ctx, s.user.ID, "receipt.jpg", []byte("img"))
	assert.Error(s.T(), err)
}

func (s *ServiceTestSuite) TestIngestReceiptReusesGeneratedCategory() {
	analyzer := &stubAnalyzer{result: &ocr.Result{Total: "1.00"}}
	svc := NewOCRService(analyzer, s.repo, s.expenses, s.publisher)

	first, err := svc.IngestReceipt(s.ctx, s.user.ID, "a.jpg", []byte("img"))
	require.NoError(s.T(), err)
	second, err := svc.IngestReceipt(s.ctx, s.user.ID, "b.jpg", []byte("img"))
	require.NoError(s.T(), err)

	require.Len(s.T(), first.Categories, 1)
	require.Len(s.T(), second.Categories, 1)
	assert.Equal(s.T(), first.Categories[0].ID, second.Categories[0].ID)
}
