package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ledger-service/internal/config"
	"ledger-service/internal/middleware"
	"ledger-service/internal/repository"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

type RouterSuite struct {
	suite.Suite
	handler http.Handler
}

func (s *RouterSuite) SetupTest() {
	cfg := config.Default()
	cfg.StorageDriver = config.StorageDriverMemory
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.handler = NewRouter(cfg, repository.NewMemoryStore(repository.DefaultAccountTypes()...), nil, logger)
}

func (s *RouterSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (s *RouterSuite) TestDepositWithdrawAndReport() {
	rec, env := s.do(http.MethodPost, "/users/5/deposits", map[string]string{"amount": "250.00"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var deposit map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &deposit))
	s.Equal("DEPOSIT", deposit["transaction_type"])
	s.Equal("250.00", deposit["balance_after_transaction"])

	rec, env = s.do(http.MethodPost, "/users/5/withdrawals", map[string]string{"amount": "100.25"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var withdrawal map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &withdrawal))
	s.Equal("149.75", withdrawal["balance_after_transaction"])

	rec, env = s.do(http.MethodGet, "/users/5/account", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var account map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &account))
	s.Equal("149.75", account["balance"])
	s.Equal(float64(10000001), account["account_no"])
	s.Equal("Savings", account["account_type"])
	s.NotEmpty(account["initial_deposit_date"])

	rec, env = s.do(http.MethodGet, "/users/5/transactions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var report struct {
		Account      map[string]interface{}   `json:"account"`
		Transactions []map[string]interface{} `json:"transactions"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &report))
	s.Len(report.Transactions, 2)
	s.Equal("149.75", report.Account["balance"])
}

func (s *RouterSuite) TestValidationErrorsAreFieldLevel() {
	rec, env := s.do(http.MethodPost, "/users/5/deposits", map[string]string{"amount": "5"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Require().NotNil(env.Error)
	s.Equal("below_minimum", env.Error.Code)
	s.Equal("amount", env.Error.Field)

	rec, env = s.do(http.MethodPost, "/users/5/deposits", map[string]string{"amount": "10.005"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Require().NotNil(env.Error)
	s.Equal("invalid_amount", env.Error.Code)
	s.Equal("amount", env.Error.Field)

	rec, env = s.do(http.MethodPost, "/users/5/withdrawals", map[string]string{"amount": "5"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("no_account", env.Error.Code)

	s.do(http.MethodPost, "/users/5/deposits", map[string]string{"amount": "20"})

	rec, env = s.do(http.MethodPost, "/users/5/withdrawals", map[string]string{"amount": "25"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("insufficient_funds", env.Error.Code)

	rec, env = s.do(http.MethodPost, "/users/5/withdrawals", map[string]interface{}{})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("missing_amount", env.Error.Code)

	rec, env = s.do(http.MethodPost, "/users/5/withdrawals", map[string]string{"amount": "ten"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_input", env.Error.Code)
}

func (s *RouterSuite) TestReportRejectsBadRange() {
	rec, env := s.do(http.MethodGet, "/users/5/transactions?daterange=bad-data", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_range", env.Error.Code)
	s.Equal("daterange", env.Error.Field)

	q := url.Values{"daterange": {"2024-01-01 - 2024-01-31"}}
	rec, _ = s.do(http.MethodGet, "/users/5/transactions?"+q.Encode(), nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestAccountNotFound() {
	rec, env := s.do(http.MethodGet, "/users/77/account", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("account_not_found", env.Error.Code)
}

func (s *RouterSuite) TestHealth() {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "healthy")
	s.NotEmpty(rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func TestIdempotentDepositIsAppliedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore(repository.DefaultAccountTypes()...)
	router := NewRouter(cfg, store, cache, logger)

	deposit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users/3/deposits", bytes.NewBufferString(`{"amount":"40.00"}`))
		req.Header.Set(middleware.IdempotencyKeyHeader, "dep-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := deposit()
	require.Equal(t, http.StatusCreated, first.Code)
	second := deposit()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/3/account", nil))
	assert.Contains(t, rec.Body.String(), `"balance":"40.00"`)
}
