package metrics

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelInvalidArgument = "invalid_argument"
	labelError           = "error"
)

// instrumented counts and times every call of the wrapped service.
type instrumented struct {
	next     service.Service
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Instrument wraps next and registers its collectors on reg.
func Instrument(next service.Service, reg prometheus.Registerer) (service.Service, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_operations_total",
		Help: "Account operations by outcome.",
	}, []string{"operation", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "account_operation_duration_seconds",
		Help:    "Latency of account operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	for _, c := range []prometheus.Collector{ops, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &instrumented{next: next, ops: ops, duration: duration}, nil
}

func (m *instrumented) observe(op string, start time.Time, res model.Result, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.ops.WithLabelValues(op, outcome(res, err)).Inc()
}

func outcome(res model.Result, err error) string {
	switch {
	case err == nil:
		return res.String()
	case customErrors.IsInvalidArgument(err):
		return labelInvalidArgument
	default:
		return labelError
	}
}

func (m *instrumented) Register(ctx context.Context, email, password string) (model.Result, error) {
	start := time.Now()
	res, err := m.next.Register(ctx, email, password)
	m.observe("register", start, res, err)
	return res, err
}

func (m *instrumented) Login(ctx context.Context, email, password string) (model.SessionResult, error) {
	start := time.Now()
	res, err := m.next.Login(ctx, email, password)
	m.observe("login", start, res.Code, err)
	return res, err
}

func (m *instrumented) GetCurrentUser(ctx context.Context, token string) (model.SessionResult, error) {
	start := time.Now()
	res, err := m.next.GetCurrentUser(ctx, token)
	m.observe("get_current_user", start, res.Code, err)
	return res, err
}

func (m *instrumented) StartResetPassword(ctx context.Context, email string) (model.CodeResult, error) {
	start := time.Now()
	res, err := m.next.StartResetPassword(ctx, email)
	m.observe("start_reset_password", start, res.Code, err)
	return res, err
}

func (m *instrumented) CompleteResetPassword(ctx context.Context, email, code, newPassword string) (model.Result, error) {
	start := time.Now()
	res, err := m.next.CompleteResetPassword(ctx, email, code, newPassword)
	m.observe("complete_reset_password", start, res, err)
	return res, err
}

func (m *instrumented) StartChangeEmail(ctx context.Context, email string) (model.CodeResult, error) {
	start := time.Now()
	res, err := m.next.StartChangeEmail(ctx, email)
	m.observe("start_change_email", start, res.Code, err)
	return res, err
}

func (m *instrumented) CompleteChangeEmail(ctx context.Context, token, newEmail, code string) (model.Result, error) {
	start := time.Now()
	res, err := m.next.CompleteChangeEmail(ctx, token, newEmail, code)
	m.observe("complete_change_email", start, res, err)
	return res, err
}

func (m *instrumented) ValidateEmail(ctx context.Context, email, code string) (model.Result, error) {
	start := time.Now()
	res, err := m.next.ValidateEmail(ctx, email, code)
	m.observe("validate_email", start, res, err)
	return res, err
}
