package esewa

import (
	"context"
	"net/url"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

type ProtocolMock struct {
	mock.Mock
	GatewayProtocol
}

func (m *ProtocolMock) Name() string { return "mock" }

func (m *ProtocolMock) PaymentURL() string { return "https://pay.example" }

func (m *ProtocolMock) Initiate(ctx context.Context, req models.TransactionRequest) (*models.Transaction, map[string]string, error) {
	args := m.Called(ctx, req)
	txn, _ := args.Get(0).(*models.Transaction)
	fields, _ := args.Get(1).(map[string]string)
	return txn, fields, args.Error(2)
}

func (m *ProtocolMock) Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationOutcome, error) {
	args := m.Called(ctx, req)
	outcome, _ := args.Get(0).(*models.VerificationOutcome)
	return outcome, args.Error(1)
}

func (m *ProtocolMock) ParseCallback(query url.Values) (*models.Callback, error) {
	args := m.Called(query)
	cb, _ := args.Get(0).(*models.Callback)
	return cb, args.Error(1)
}

type RepositoryMock struct {
	mock.Mock
	interfaces.TransactionRepository
}

func (m *RepositoryMock) Create(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *RepositoryMock) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	txn, _ := args.Get(0).(*models.Transaction)
	return txn, args.Error(1)
}

func (m *RepositoryMock) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, refID string) error {
	args := m.Called(ctx, id, status, refID)
	return args.Error(0)
}

func (m *RepositoryMock) ListUnsettled(ctx context.Context, protocol string, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, protocol, olderThan, limit)
	txns, _ := args.Get(0).([]*models.Transaction)
	return txns, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, evt models.PaymentEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *PublisherMock) Close() error { return nil }
